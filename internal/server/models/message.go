package models

// Message is a direct message row in a personal store. The copy in the
// sender's store is encrypted with the sender's symmetric key; the copy
// delivered into the receiver's store is encrypted with the receiver's
// public key. File messages carry the payload in the file fields instead of
// Body.
type Message struct {
	Sender      string
	Receiver    string
	Body        string
	FileURL     string
	FileName    string
	FileType    string
	FileSize    int64
	IsEncrypted bool
	Timestamp   int64 // unix milliseconds
}

// IsFile reports whether the message is a file message.
func (m *Message) IsFile() bool {
	return m.FileURL != "" && m.FileName != ""
}
