// Package gcp holds the Google Cloud client options shared by the cloud OCR
// backends.
package gcp

import (
	"google.golang.org/api/option"
)

// Credentials selects how cloud clients authenticate. Inline JSON wins over a
// credentials file; with neither set, Application Default Credentials apply.
type Credentials struct {
	// File is a service account key path (GOOGLE_APPLICATION_CREDENTIALS).
	File string

	// JSON is an inline service account key (GOOGLE_CREDENTIALS).
	JSON string
}

// Configured reports whether explicit credentials were supplied.
func (c Credentials) Configured() bool {
	return c.JSON != "" || c.File != ""
}

// Source names the credential source for logs.
func (c Credentials) Source() string {
	switch {
	case c.JSON != "":
		return "GOOGLE_CREDENTIALS"
	case c.File != "":
		return "GOOGLE_APPLICATION_CREDENTIALS"
	default:
		return "application-default"
	}
}

// ClientOptions returns the authentication options for a client constructor.
func (c Credentials) ClientOptions() []option.ClientOption {
	switch {
	case c.JSON != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(c.JSON))}
	case c.File != "":
		return []option.ClientOption{option.WithCredentialsFile(c.File)}
	default:
		return nil
	}
}
