package gmail

// Wire types for the Gmail REST API (v1). Only the fields this app reads.

type Profile struct {
	EmailAddress  string `json:"emailAddress"`
	MessagesTotal int    `json:"messagesTotal"`
	ThreadsTotal  int    `json:"threadsTotal"`
}

type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type messageList struct {
	Messages           []MessageRef `json:"messages"`
	NextPageToken      string       `json:"nextPageToken"`
	ResultSizeEstimate int          `json:"resultSizeEstimate"`
}

type Message struct {
	ID       string       `json:"id"`
	ThreadID string       `json:"threadId"`
	LabelIDs []string     `json:"labelIds"`
	Snippet  string       `json:"snippet"`
	Payload  *MessagePart `json:"payload"`
}

// MessagePart is one node of the (possibly nested) MIME part tree.
type MessagePart struct {
	MimeType string         `json:"mimeType"`
	Filename string         `json:"filename"`
	Headers  []Header       `json:"headers"`
	Body     *PartBody      `json:"body"`
	Parts    []*MessagePart `json:"parts"`
}

// PartBody carries the url-safe-base64 payload of a part, when present.
type PartBody struct {
	AttachmentID string `json:"attachmentId"`
	Size         int    `json:"size"`
	Data         string `json:"data"`
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HeaderValue returns the value of the first header with the given name, or
// empty when absent.
func (m *Message) HeaderValue(name string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if h.Name == name {
			return h.Value
		}
	}
	return ""
}
