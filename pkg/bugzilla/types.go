package bugzilla

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Bug is a Bugzilla bug record. Fields absent from a response (because of
// include_fields filtering) keep their zero value. Custom fields such as
// cf_status_firefox57 are kept in Custom.
type Bug struct {
	ID             int       `json:"id"`
	Summary        string    `json:"summary"`
	Status         string    `json:"status"`
	Resolution     string    `json:"resolution"`
	Product        string    `json:"product"`
	Component      string    `json:"component"`
	AssignedTo     string    `json:"assigned_to"`
	Creator        string    `json:"creator"`
	CC             []string  `json:"cc"`
	CCDetail       []User    `json:"cc_detail"`
	DupeOf         *int      `json:"dupe_of"`
	Blocks         []int     `json:"blocks"`
	DependsOn      []int     `json:"depends_on"`
	Keywords       []string  `json:"keywords"`
	Flags          []Flag    `json:"flags"`
	CreationTime   time.Time `json:"creation_time"`
	LastChangeTime time.Time `json:"last_change_time"`

	// Custom holds every string-valued cf_* field.
	Custom map[string]string `json:"-"`
}

type bugAlias Bug

// UnmarshalJSON decodes the fixed fields, then collects cf_* fields.
func (b *Bug) UnmarshalJSON(data []byte) error {
	var alias bugAlias

	err := json.Unmarshal(data, &alias)
	if err != nil {
		return err
	}

	var raw map[string]json.RawMessage

	err = json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	*b = Bug(alias)

	for key, value := range raw {
		if !strings.HasPrefix(key, "cf_") {
			continue
		}

		var s string
		if json.Unmarshal(value, &s) == nil {
			if b.Custom == nil {
				b.Custom = map[string]string{}
			}

			b.Custom[key] = s
		}
	}

	return nil
}

// Field returns the custom field name, or "" when absent.
func (b *Bug) Field(name string) string {
	return b.Custom[name]
}

// CrashSignatures returns the signatures listed in cf_crash_signature.
func (b *Bug) CrashSignatures() []string {
	return ParseSignatures(b.Field("cf_crash_signature"))
}

// IsOpen reports whether the bug has no resolution.
func (b *Bug) IsOpen() bool {
	return b.Resolution == ""
}

// Flag is a bug or attachment flag.
type Flag struct {
	ID               int       `json:"id"`
	Name             string    `json:"name"`
	Status           string    `json:"status"`
	Setter           string    `json:"setter"`
	Requestee        string    `json:"requestee"`
	CreationDate     time.Time `json:"creation_date"`
	ModificationDate time.Time `json:"modification_date"`
}

// User is a Bugzilla account.
type User struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	Email    string `json:"email"`
	Nick     string `json:"nick"`
}

// Address returns the account email, falling back to the login name.
func (u User) Address() string {
	if u.Email != "" {
		return u.Email
	}

	return u.Name
}

// Change is one field modification inside a history entry.
type Change struct {
	FieldName    string `json:"field_name"`
	Removed      string `json:"removed"`
	Added        string `json:"added"`
	AttachmentID int    `json:"attachment_id,omitempty"`
}

// HistoryEntry groups the changes one user made at one time.
type HistoryEntry struct {
	Who     string    `json:"who"`
	When    time.Time `json:"when"`
	Changes []Change  `json:"changes"`
}

// History is the full change history of one bug.
type History struct {
	BugID   int            `json:"id"`
	Entries []HistoryEntry `json:"history"`
}

// Comment is one bug comment.
type Comment struct {
	ID           int       `json:"id"`
	BugID        int       `json:"bug_id"`
	AttachmentID *int      `json:"attachment_id"`
	Count        int       `json:"count"`
	Text         string    `json:"text"`
	Creator      string    `json:"creator"`
	Time         time.Time `json:"time"`
	CreationTime time.Time `json:"creation_time"`
	IsPrivate    bool      `json:"is_private"`
	Tags         []string  `json:"tags"`
}

// Comments are the comments of one bug, in posting order.
type Comments struct {
	BugID    int
	Comments []Comment
}

// Attachment is one bug attachment. Data holds the decoded payload when it
// was requested.
type Attachment struct {
	ID             int       `json:"id"`
	BugID          int       `json:"bug_id"`
	FileName       string    `json:"file_name"`
	Summary        string    `json:"summary"`
	ContentType    string    `json:"content_type"`
	IsPatch        bool      `json:"is_patch"`
	IsObsolete     bool      `json:"is_obsolete"`
	Creator        string    `json:"creator"`
	CreationTime   time.Time `json:"creation_time"`
	LastChangeTime time.Time `json:"last_change_time"`
	Size           int       `json:"size"`
	Flags          []Flag    `json:"flags"`
	Data           []byte    `json:"data"`
}

// ReviewFlags returns the attachment's review flags.
func (a Attachment) ReviewFlags() []Flag {
	var out []Flag

	for _, f := range a.Flags {
		if f.Name == "review" {
			out = append(out, f)
		}
	}

	return out
}

// HasReview reports whether a review flag carries the given status.
func (a Attachment) HasReview(status string) bool {
	for _, f := range a.ReviewFlags() {
		if f.Status == status {
			return true
		}
	}

	return false
}

// Attachments are the attachments of one bug.
type Attachments struct {
	BugID       int
	Attachments []Attachment
}

// Fault reports a bug the server refused to return (private or missing).
type Fault struct {
	ID          json.Number `json:"id"`
	FaultString string      `json:"faultString"`
	FaultCode   int         `json:"faultCode"`
}
