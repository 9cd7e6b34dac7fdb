package knowledge

// Metadata keys with store-level meaning. Everything else in the bag is
// free-form and passes through untouched.
const (
	// MetaCategory tags a chunk as general, technical or legal.
	MetaCategory = "category"

	// MetaManufacturer holds a normalized manufacturer name.
	MetaManufacturer = "manufacturer"

	// MetaDeviceModels holds a list of device model tokens; matched with
	// array-contains semantics, unlike the exact-match keys above.
	MetaDeviceModels = "device_models"

	// MetaSourceFile duplicates the source filename into the bag so it
	// travels with search results.
	MetaSourceFile = "source_filename"
)

// Knowledge-base categories.
const (
	CategoryGeneral   = "general"
	CategoryTechnical = "technical"
	CategoryLegal     = "legal"
)

// Chunk is the unit of storage: one bounded fragment of a source document
// plus its metadata bag.
type Chunk struct {
	SourceFile string
	Number     int
	Content    string         // display form, may keep light markup
	Text       string         // plain form that was embedded
	Metadata   map[string]any // free-form; see Meta* keys
}

// StoredChunk is a Chunk with its store-assigned identity.
type StoredChunk struct {
	ID int64
	Chunk
}

// Result is one similarity-search hit. Ephemeral; never persisted.
type Result struct {
	StoredChunk
	Similarity float64
}

// Filter restricts a search before ranking. Exact filters use JSONB
// containment; array filters match when the metadata array shares any
// element with Values.
type Filter struct {
	Key           string
	Value         string
	Values        []string
	ArrayContains bool
}

// SearchOption configures Search.
type SearchOption func(*searchConfig)

type searchConfig struct {
	limit     int
	threshold float64
	filters   []Filter
}

// WithLimit caps the number of results. Default 5.
func WithLimit(n int) SearchOption {
	return func(c *searchConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithThreshold sets the minimum similarity for a hit. Default 0.5.
func WithThreshold(t float64) SearchOption {
	return func(c *searchConfig) {
		c.threshold = t
	}
}

// WithFilter adds an exact-match metadata filter. Repeated calls AND.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		c.filters = append(c.filters, Filter{Key: key, Value: value})
	}
}

// WithAnyOf adds an array-contains filter: the chunk's metadata array at
// key must share at least one element with values.
func WithAnyOf(key string, values []string) SearchOption {
	return func(c *searchConfig) {
		if len(values) > 0 {
			c.filters = append(c.filters, Filter{Key: key, Values: values, ArrayContains: true})
		}
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		limit:     5,
		threshold: 0.5,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Scope narrows Clear to one source file or one category. The zero value
// clears everything and resets the id sequence.
type Scope struct {
	SourceFile string
	Category   string
}

// All reports whether the scope covers the whole store.
func (s Scope) All() bool {
	return s.SourceFile == "" && s.Category == ""
}
