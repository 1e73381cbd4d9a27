package registry

import "encoding/json"

// DefaultDepartment is the fallback rule key applied to users without an
// assigned department, and to sources with no rule for the user's department.
const DefaultDepartment = "default"

// SourceType identifies the executor family for a data source.
type SourceType string

const (
	SourcePostgres     SourceType = "postgres"
	SourceMySQL        SourceType = "mysql"
	SourceRESTAPI      SourceType = "rest_api"
	SourceGoogleSheets SourceType = "google_sheets"
	SourceSlack        SourceType = "slack"
	SourceNotion       SourceType = "notion"
	SourceAsana        SourceType = "asana"
	SourceGA4          SourceType = "ga4"
	SourcePlausible    SourceType = "plausible"
	SourceMetaAds      SourceType = "meta_ads"
	SourceGitHub       SourceType = "github"
)

// knownSourceTypes is the closed set accepted at the load boundary.
var knownSourceTypes = map[SourceType]bool{
	SourcePostgres:     true,
	SourceMySQL:        true,
	SourceRESTAPI:      true,
	SourceGoogleSheets: true,
	SourceSlack:        true,
	SourceNotion:       true,
	SourceAsana:        true,
	SourceGA4:          true,
	SourcePlausible:    true,
	SourceMetaAds:      true,
	SourceGitHub:       true,
}

// DataSource is a configured external system that tools may query.
// Config is an opaque blob interpreted by the matching executor.
type DataSource struct {
	Name        string
	DisplayName string
	Type        SourceType
	Config      json.RawMessage
	IsActive    bool
}

// PermissionRule scopes one data source for one department.
// Table lists are explicit allow-lists: empty means no access for that
// operation. Column lists are blocklists applied on top of allowed tables;
// a blocklist entry for a non-allowed table is inert.
type PermissionRule struct {
	SourceName          string
	Department          string
	ReadTables          []string
	WriteTables         []string
	DeleteTables        []string
	ReadBlockedColumns  []string
	WriteBlockedColumns []string
}

// Visibility controls who can see a tool in the marketplace.
type Visibility string

const (
	VisibilityPrivate    Visibility = "private"
	VisibilityDepartment Visibility = "department"
	VisibilityCompany    Visibility = "company"
	VisibilityPublic     Visibility = "public"
)

// Tool is the read-side projection of a generated tool. The bridge only
// needs the author, visibility and declared source scope.
type Tool struct {
	ID             string
	Name           string
	AuthorID       string
	Department     string
	Visibility     Visibility
	AllowedSources []string
}

// AllowsSource reports whether the tool's declared scope includes name.
func (t *Tool) AllowsSource(name string) bool {
	for _, s := range t.AllowedSources {
		if s == name {
			return true
		}
	}
	return false
}
