package rmcloud

import "time"

// Kind discriminates documents from folders. The values are the backend's
// type discriminators and must be sent verbatim.
type Kind string

const (
	KindDocument   Kind = "DocumentType"
	KindCollection Kind = "CollectionType"
)

// RootFolder is the parent ID of top-level items. The root is not itself an
// item and cannot be fetched.
const RootFolder = ""

// Item is a document or folder in the backend's flat hierarchy, normalized
// from the wire format; callers never see raw API data.
type Item struct {
	ID         string
	Version    int
	Kind       Kind
	Name       string
	ParentID   string // RootFolder for top-level items
	Bookmarked bool
	ModifiedAt time.Time

	// Signed content URLs, present only when requested with withBlob.
	// Ephemeral and embed auth material; never log.
	BlobURLGet        string
	BlobURLGetExpires string
}

// IsFolder reports whether the item is a collection.
func (i *Item) IsFolder() bool {
	return i.Kind == KindCollection
}

// IsDocument reports whether the item is a document.
func (i *Item) IsDocument() bool {
	return i.Kind == KindDocument
}

// timestampLayout is the backend's client-modified timestamp format:
// ISO-8601 with millisecond precision and a trailing UTC designator.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// nowTimestamp returns the current UTC time in the backend's format.
func nowTimestamp() string {
	return time.Now().UTC().Format(timestampLayout)
}

// wireItem mirrors the backend's item JSON exactly, including the API's
// "VissibleName" spelling. Success is a pointer because the backend omits it
// in some responses and an omitted flag means success.
type wireItem struct {
	ID                string `json:"ID"`
	Version           int    `json:"Version"`
	Message           string `json:"Message"`
	Success           *bool  `json:"Success"`
	BlobURLGet        string `json:"BlobURLGet"`
	BlobURLGetExpires string `json:"BlobURLGetExpires"`
	ModifiedClient    string `json:"ModifiedClient"`
	Type              Kind   `json:"Type"`
	VissibleName      string `json:"VissibleName"`
	CurrentPage       int    `json:"CurrentPage"`
	Bookmarked        bool   `json:"Bookmarked"`
	Parent            string `json:"Parent"`
}

// ok reports the response's success flag, treating an omitted flag as success.
func (w *wireItem) ok() bool {
	return w.Success == nil || *w.Success
}

// toItem normalizes a wire item into the public Item type. A missing or
// malformed ModifiedClient yields a zero ModifiedAt rather than an error;
// the field is display metadata, not protocol state.
func (w *wireItem) toItem() Item {
	item := Item{
		ID:                w.ID,
		Version:           w.Version,
		Kind:              w.Type,
		Name:              w.VissibleName,
		ParentID:          w.Parent,
		Bookmarked:        w.Bookmarked,
		BlobURLGet:        w.BlobURLGet,
		BlobURLGetExpires: w.BlobURLGetExpires,
	}

	if w.ModifiedClient != "" {
		if t, err := time.Parse(time.RFC3339, w.ModifiedClient); err == nil {
			item.ModifiedAt = t
		}
	}

	return item
}

// registrationRequest is the body for the device-registration exchange.
type registrationRequest struct {
	Code       string `json:"code"`
	DeviceDesc string `json:"deviceDesc"`
	DeviceID   string `json:"deviceID"`
}

// discoveryResponse is the service-discovery reply.
type discoveryResponse struct {
	Status string `json:"Status"`
	Host   string `json:"Host"`
}

// uploadRequest reserves an item identifier. Sent as a single-element array;
// the backend's PUT endpoints take and return lists even for one item.
type uploadRequest struct {
	ID      string `json:"ID"`
	Version int    `json:"Version"`
	Type    Kind   `json:"Type"`
}

// uploadResponse is one element of the upload-reservation reply.
type uploadResponse struct {
	ID                string `json:"ID"`
	Version           int    `json:"Version"`
	Message           string `json:"Message"`
	Success           *bool  `json:"Success"`
	BlobURLPut        string `json:"BlobURLPut"`
	BlobURLPutExpires string `json:"BlobURLPutExpires"`
}

func (u *uploadResponse) ok() bool {
	return u.Success == nil || *u.Success
}

// updateRequest commits item metadata. Mutations resubmit the full record
// with the version incremented.
type updateRequest struct {
	ID             string `json:"ID"`
	Version        int    `json:"Version"`
	Parent         string `json:"Parent"`
	VissibleName   string `json:"VissibleName"`
	Type           Kind   `json:"Type"`
	ModifiedClient string `json:"ModifiedClient"`
	Bookmarked     bool   `json:"Bookmarked"`
}

// deleteRequest keys a deletion by the item's current version. A stale
// version is rejected by the backend.
type deleteRequest struct {
	ID      string `json:"ID"`
	Version int    `json:"Version"`
}
