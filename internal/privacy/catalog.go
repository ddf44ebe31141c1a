package privacy

import "regexp"

// Detection patterns. PHONE and DATE accept ambiguous digit runs.
var (
	emailPattern      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePattern      = regexp.MustCompile(`(\+\d{1,3}[-.\s]?)?(\(?\d{2,4}\)?[-.\s]?)?\d{3,4}[-.\s]?\d{3,4}`)
	ipAddressPattern  = regexp.MustCompile(`\b\d{1,3}(\.\d{1,3}){3}\b`)
	cardNumberPattern = regexp.MustCompile(`\b(?:\d{4}[- ]?){3,4}\d{4}\b`)
	datePattern       = regexp.MustCompile(`\b\d{1,4}[-/]\d{1,2}[-/]\d{1,4}\b`)
	timePattern       = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)
	urlPattern        = regexp.MustCompile(`(https?://[^\s]+)`)
)

// knownLocations is the location gazetteer
var knownLocations = []string{
	"Dhaka", "Chittagong", "Khulna", "Cardiff", "Croydon", "Bath", "Exeter",
	"Watford", "Epsom", "Hounslow", "Newport", "Salford", "Stockport",
	"Burnley", "Chesterfield", "Dagenham", "Brentwood", "Gravesend", "Harrow",
	"Redhill", "Barnet", "Walthamstow", "Chicago", "London", "Brooklyn",
	"Los Angeles",
}

// KnownLocations returns a copy of the location gazetteer
func KnownLocations() []string {
	out := make([]string, len(knownLocations))
	copy(out, knownLocations)
	return out
}

// Catalog is the ordered set of detectors shared by redaction and
// enumeration. It is immutable after construction and safe for concurrent use.
type Catalog struct {
	detectors []Detector
	persons   PersonRecognizer
}

// NewCatalog builds the catalog. A nil recognizer finds no names.
func NewCatalog(persons PersonRecognizer) *Catalog {
	person := NewPersonDetector(persons)

	return &Catalog{
		persons: person.Recognizer(),
		detectors: []Detector{
			person,
			NewGazetteerDetector(CategoryLocation, knownLocations),
			NewPatternDetector(CategoryEmail, emailPattern),
			NewPatternDetector(CategoryIPAddress, ipAddressPattern),
			NewPatternDetector(CategoryCardNumber, cardNumberPattern),
			NewPatternDetector(CategoryPhone, phonePattern),
			NewPatternDetector(CategoryDate, datePattern),
			NewPatternDetector(CategoryTime, timePattern),
			NewPatternDetector(CategoryURL, urlPattern),
		},
	}
}

// Detectors returns the detectors in evaluation order
func (c *Catalog) Detectors() []Detector {
	out := make([]Detector, len(c.detectors))
	copy(out, c.detectors)
	return out
}

// Recognizer returns the person recognizer behind the NAME detector
func (c *Catalog) Recognizer() PersonRecognizer {
	return c.persons
}

// FindAll runs the detector for a single category. Unknown categories yield
// no matches.
func (c *Catalog) FindAll(text string, category Category) []Match {
	for _, d := range c.detectors {
		if d.Category() == category {
			return d.FindAll(text)
		}
	}
	return nil
}
