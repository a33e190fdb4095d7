package mcp

// Tool names.
const (
	ToolSearchNotes     = "search_notes"
	ToolGetNote         = "get_note"
	ToolFindRelated     = "find_related"
	ToolSearchByTag     = "search_by_tag"
	ToolGetBacklinks    = "get_backlinks"
	ToolGetForwardLinks = "get_forward_links"
	ToolGetOrphans      = "get_orphaned_notes"
	ToolGetVaultStats   = "get_vault_stats"
	ToolUpdateIndex     = "update_index"
	ToolPackContext     = "pack_note_context"
	ToolQueryRecent     = "query_recent"
)

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var toolInfos = []ToolInfo{
	{ToolSearchNotes, "Semantic search over the vault. Returns the best matching passages with their note title, folder and tags."},
	{ToolGetNote, "Return the full content of a note by title, with its folder, tags and wiki links."},
	{ToolFindRelated, "Find notes that read like the note at note_path (vault-relative or absolute)."},
	{ToolSearchByTag, "List the notes carrying a tag. A leading # is optional."},
	{ToolGetBacklinks, "List the notes that link to a note with [[wiki links]]."},
	{ToolGetForwardLinks, "List the notes a note links to, marking links whose target does not exist yet."},
	{ToolGetOrphans, "List notes with no incoming and no outgoing wiki links."},
	{ToolGetVaultStats, "Vault statistics: indexed notes, last update, folder distribution, link network and top tags."},
	{ToolUpdateIndex, "Index new, modified and deleted notes now instead of waiting for the file watcher."},
	{ToolPackContext, "Package a note with its backlinks, forward links and similar notes into one token-budgeted markdown document."},
	{ToolQueryRecent, "List notes modified in the last N days, newest first, optionally within one folder."},
}

// SearchNotesInput is the input of search_notes.
type SearchNotesInput struct {
	Query  string `json:"query" jsonschema:"the search query"`
	TopK   int    `json:"top_k,omitempty" jsonschema:"number of results, default 5"`
	Folder string `json:"folder,omitempty" jsonschema:"only search notes in this top-level folder"`
}

// GetNoteInput is the input of get_note.
type GetNoteInput struct {
	Title string `json:"title" jsonschema:"the note title (file name without extension)"`
}

// FindRelatedInput is the input of find_related.
type FindRelatedInput struct {
	NotePath string `json:"note_path" jsonschema:"path of the note, relative to the vault or absolute"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"number of results, default 5"`
}

// SearchByTagInput is the input of search_by_tag.
type SearchByTagInput struct {
	Tag string `json:"tag" jsonschema:"the tag, with or without the leading #"`
}

// NoteTitleInput is the input of get_backlinks and get_forward_links.
type NoteTitleInput struct {
	NoteTitle string `json:"note_title" jsonschema:"the note title"`
}

// EmptyInput is the input of tools without parameters.
type EmptyInput struct{}

// PackContextInput is the input of pack_note_context. Unset booleans and
// limits take the configured defaults.
type PackContextInput struct {
	NoteTitle           string `json:"note_title" jsonschema:"the note to package"`
	MaxTokens           int    `json:"max_tokens,omitempty" jsonschema:"token budget, default 100000"`
	IncludeBacklinks    *bool  `json:"include_backlinks,omitempty" jsonschema:"include notes linking to this note, default true"`
	IncludeForwardLinks *bool  `json:"include_forward_links,omitempty" jsonschema:"include notes this note links to, default true"`
	IncludeSemantic     *bool  `json:"include_semantic_related,omitempty" jsonschema:"include similar notes, default true"`
	IncludeTagRelated   *bool  `json:"include_tag_related,omitempty" jsonschema:"include notes sharing the first tag, default false"`
	MaxBacklinks        int    `json:"max_backlinks,omitempty" jsonschema:"maximum backlinks, default 10"`
	MaxForwardLinks     int    `json:"max_forward_links,omitempty" jsonschema:"maximum forward links, default 10"`
	MaxSemanticRelated  int    `json:"max_semantic_related,omitempty" jsonschema:"maximum similar notes, default 5"`
	MaxTagRelated       int    `json:"max_tag_related,omitempty" jsonschema:"maximum tag-related notes, default 5"`
}

// QueryRecentInput is the input of query_recent.
type QueryRecentInput struct {
	Days   int    `json:"days,omitempty" jsonschema:"look back this many days, default 7"`
	Folder string `json:"folder,omitempty" jsonschema:"only notes in this top-level folder"`
}

// clampLimit returns def for non-positive n and caps n at max.
func clampLimit(n, def, max int) int {
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
