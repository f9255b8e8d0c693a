package types

// Media describes an object uploaded for use as a session image or script.
type Media struct {
	// Key is the object key inside the configured bucket.
	Key string `json:"key"`

	// URL is where clients fetch the object from. It is what gets stored in
	// a session's image_url or json_file_url.
	URL string `json:"url"`

	SHA256      string `json:"sha256"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}
