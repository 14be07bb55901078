package metadata

// Snapshot is the flat record produced by the scraper for one page.
type Snapshot struct {
	Title              string `json:"title"`
	Description        string `json:"description"`
	Keywords           string `json:"keywords"`
	H1                 string `json:"h1"`
	OGTitle            string `json:"ogTitle"`
	OGDescription      string `json:"ogDescription"`
	TwitterTitle       string `json:"twitterTitle"`
	TwitterDescription string `json:"twitterDescription"`
	SourceLanguage     string `json:"sourceLanguage"`
	SourceHost         string `json:"sourceHost"`
}

// PrimarySection holds the page's own metadata.
type PrimarySection struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Keywords    string `json:"keywords"`
	H1          string `json:"h1"`
}

// SocialSection holds one social-share card.
type SocialSection struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Content is the normalized subset of a Snapshot that gets translated.
//
// Every field is a plain string without omitempty and the sections are
// structs, so the JSON encoding has a fixed key order and never drops keys.
// Cache keys depend on that.
type Content struct {
	Metadata   PrimarySection `json:"metadata"`
	OpenGraph  SocialSection  `json:"openGraph"`
	Twitter    SocialSection  `json:"twitter"`
	SourceHost string         `json:"sourceHost"`
}

// Translation is one language's entry in a translation result: either the
// translated content or an error marker for that language alone.
type Translation struct {
	Content
	Error string `json:"_error,omitempty"`
}

// Failed builds an error marker entry.
func Failed(reason string) Translation {
	return Translation{Error: reason}
}

func (t Translation) Failed() bool {
	return t.Error != ""
}
