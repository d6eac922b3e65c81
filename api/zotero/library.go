package zotero

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ka2n/litrev/config"
	"github.com/morikuni/failure/v2"
	"github.com/samber/lo"
)

// Statuses is the list of valid paper statuses in pipeline order.
var Statuses = []string{"needs_pdf", "needs_notebooklm", "complete"}

// Paper is the litrev view of a Zotero item.
type Paper struct {
	ItemKey     string `json:"item_key"`
	CitationKey string `json:"citation_key"`
	Title       string `json:"title"`
	Authors     string `json:"authors"`
	Year        string `json:"year"`
	DOI         string `json:"doi"`
	ItemType    string `json:"item_type"`
	Status      string `json:"status"`
	PDFFilename string `json:"pdf_filename"`
	DateAdded   string `json:"-"`
}

// CitationKeyFromExtra extracts the Better BibTeX key stored as
// "Citation Key: xxx" in the extra field.
func CitationKeyFromExtra(extra string) string {
	for _, line := range strings.Split(extra, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(line), "citation key:") {
			_, v, _ := strings.Cut(line, ":")
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// StatusFromTags resolves the paper status. complete wins over
// needs_notebooklm, which wins over needs_pdf.
func StatusFromTags(tags []Tag, st config.StatusTags) string {
	names := lo.SliceToMap(tags, func(t Tag) (string, struct{}) { return t.Tag, struct{}{} })
	for _, s := range []string{"complete", "needs_notebooklm", "needs_pdf"} {
		tag, _ := st.ByStatus(s)
		if _, ok := names[tag]; ok {
			return s
		}
	}
	return ""
}

// FormatAuthors renders authors as "A, B, C" or "A et al." past three names.
func FormatAuthors(creators []Creator) string {
	authors := lo.FilterMap(creators, func(c Creator, _ int) (string, bool) {
		if c.CreatorType != "author" {
			return "", false
		}
		if c.Name != "" {
			return c.Name, true
		}
		return c.LastName, c.LastName != ""
	})
	switch {
	case len(authors) == 0:
		return "Unknown"
	case len(authors) <= 3:
		return strings.Join(authors, ", ")
	default:
		return authors[0] + " et al."
	}
}

func pdfFilename(citationKey string) string {
	if citationKey == "" {
		return ""
	}
	return citationKey + ".pdf"
}

func year(date string) string {
	if len(date) < 4 {
		return date
	}
	return date[:4]
}

// ToPaper converts an API item.
func ToPaper(item Item, st config.StatusTags) Paper {
	d := item.Data
	key := d.Key
	if key == "" {
		key = item.Key
	}
	ck := CitationKeyFromExtra(d.Extra)
	title := d.Title
	if title == "" {
		title = "Untitled"
	}
	return Paper{
		ItemKey:     key,
		CitationKey: ck,
		Title:       title,
		Authors:     FormatAuthors(d.Creators),
		Year:        year(d.Date),
		DOI:         d.DOI,
		ItemType:    d.ItemType,
		Status:      StatusFromTags(d.Tags, st),
		PDFFilename: pdfFilename(ck),
		DateAdded:   d.DateAdded,
	}
}

// Library implements the project-aware Zotero operations.
type Library struct {
	client *Client
	cfg    *config.Config
}

func NewLibrary(client *Client, cfg *config.Config) *Library {
	return &Library{client: client, cfg: cfg}
}

func (l *Library) collectionKey(project string) (string, error) {
	p, err := l.cfg.Project(project)
	if err != nil {
		return "", err
	}
	if p.ZoteroCollectionKey == "" {
		return "", failure.New(ErrCollectionNotConfigured,
			failure.Message(fmt.Sprintf("Project '%s' has no Zotero collection key configured", project)),
			failure.Context{"project": project},
		)
	}
	return p.ZoteroCollectionKey, nil
}

type ProjectSummary struct {
	Key             string `json:"key"`
	Name            string `json:"name"`
	Code            string `json:"code"`
	TotalPapers     int    `json:"total_papers"`
	NeedsPDF        int    `json:"needs_pdf"`
	NeedsNotebookLM int    `json:"needs_notebooklm"`
	Complete        int    `json:"complete"`
	Untagged        int    `json:"untagged"`
}

// StatusCounts tallies papers per status.
type StatusCounts struct {
	Total           int `json:"total"`
	NeedsPDF        int `json:"needs_pdf"`
	NeedsNotebookLM int `json:"needs_notebooklm"`
	Complete        int `json:"complete"`
	Untagged        int `json:"untagged"`
}

func CountStatuses(papers []Paper) StatusCounts {
	var c StatusCounts
	for _, p := range papers {
		c.Total++
		switch p.Status {
		case "needs_pdf":
			c.NeedsPDF++
		case "needs_notebooklm":
			c.NeedsNotebookLM++
		case "complete":
			c.Complete++
		default:
			c.Untagged++
		}
	}
	return c
}

// ListProjects summarizes every collection and maps it to a project code.
func (l *Library) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	colls, err := l.client.Collections(ctx)
	if err != nil {
		return nil, err
	}
	byKey := map[string]string{}
	for _, code := range l.cfg.ProjectCodes() {
		if k := l.cfg.Projects[code].ZoteroCollectionKey; k != "" {
			if _, ok := byKey[k]; !ok {
				byKey[k] = code
			}
		}
	}

	out := make([]ProjectSummary, 0, len(colls))
	for _, coll := range colls {
		key := coll.Data.Key
		if key == "" {
			key = coll.Key
		}
		papers, err := l.collectionPapers(ctx, key, Query{})
		if err != nil {
			return nil, err
		}
		counts := CountStatuses(papers)
		name := coll.Data.Name
		if name == "" {
			name = "Unknown"
		}
		out = append(out, ProjectSummary{
			Key:             key,
			Name:            name,
			Code:            byKey[key],
			TotalPapers:     counts.Total,
			NeedsPDF:        counts.NeedsPDF,
			NeedsNotebookLM: counts.NeedsNotebookLM,
			Complete:        counts.Complete,
			Untagged:        counts.Untagged,
		})
	}
	return out, nil
}

func (l *Library) collectionPapers(ctx context.Context, key string, q Query) ([]Paper, error) {
	items, err := l.client.CollectionItems(ctx, key, q)
	if err != nil {
		return nil, err
	}
	return lo.Map(items, func(it Item, _ int) Paper { return ToPaper(it, l.cfg.StatusTags) }), nil
}

// ProjectPapers lists the papers of a project collection. limit 0 means all.
func (l *Library) ProjectPapers(ctx context.Context, project string, limit int) ([]Paper, error) {
	key, err := l.collectionKey(project)
	if err != nil {
		return nil, err
	}
	return l.collectionPapers(ctx, key, Query{Limit: limit})
}

type CreatedCollection struct {
	CollectionKey string `json:"collection_key"`
	Name          string `json:"name"`
	ParentKey     string `json:"parent_key,omitempty"`
	Message       string `json:"message"`
}

func (l *Library) CreateCollection(ctx context.Context, name, parentKey string) (CreatedCollection, error) {
	key, err := l.client.CreateCollection(ctx, name, parentKey)
	if err != nil {
		return CreatedCollection{}, err
	}
	return CreatedCollection{
		CollectionKey: key,
		Name:          name,
		ParentKey:     parentKey,
		Message:       fmt.Sprintf("Collection '%s' created. Use this key to link to a project.", name),
	}, nil
}

type NewPaper struct {
	Project string
	DOI     string
	Title   string
	Authors string
	Year    int
	Source  string
}

type AddedPaper struct {
	ItemKey       string `json:"item_key"`
	CitationKey   string `json:"citation_key"`
	Title         string `json:"title"`
	DriveFilename string `json:"drive_filename"`
	DriveFolder   string `json:"drive_folder"`
	Message       string `json:"message"`
}

// AddPaper creates a journal article in the project collection tagged as needing a PDF.
func (l *Library) AddPaper(ctx context.Context, np NewPaper) (AddedPaper, error) {
	key, err := l.collectionKey(np.Project)
	if err != nil {
		return AddedPaper{}, err
	}
	if np.DOI == "" && np.Title == "" {
		return AddedPaper{}, failure.New(ErrMissingMetadata, failure.Message("Either DOI or title is required"))
	}

	data := ItemData{
		ItemType:    "journalArticle",
		Title:       np.Title,
		DOI:         np.DOI,
		Tags:        []Tag{{Tag: l.cfg.StatusTags.NeedsPDF}},
		Collections: []string{key},
	}
	if data.Title == "" {
		data.Title = fmt.Sprintf("[DOI: %s]", np.DOI)
	}
	if np.Authors != "" {
		data.Creators = []Creator{{CreatorType: "author", Name: np.Authors}}
	}
	if np.Year > 0 {
		data.Date = strconv.Itoa(np.Year)
	}
	if np.Source != "" {
		data.Extra = "Source: " + np.Source
	}

	itemKey, err := l.client.CreateItem(ctx, data)
	if err != nil {
		return AddedPaper{}, err
	}
	// Better BibTeX may already have written the citation key.
	item, err := l.client.Item(ctx, itemKey)
	if err != nil {
		return AddedPaper{}, err
	}
	ck := CitationKeyFromExtra(item.Data.Extra)
	return AddedPaper{
		ItemKey:       itemKey,
		CitationKey:   ck,
		Title:         item.Data.Title,
		DriveFilename: pdfFilename(ck),
		DriveFolder:   fmt.Sprintf("Literature/%s/", np.Project),
		Message:       fmt.Sprintf("Added to %s. Tagged as %s.", np.Project, l.cfg.StatusTags.NeedsPDF),
	}, nil
}

// Lookup identifies items by key, exact DOI, or a title fragment, tried in that order.
type Lookup struct {
	ItemKey     string
	DOI         string
	TitleSearch string
}

func (l *Library) find(ctx context.Context, lk Lookup, many bool) ([]Item, error) {
	if lk.ItemKey != "" {
		item, err := l.client.Item(ctx, lk.ItemKey)
		if err == nil {
			return []Item{item}, nil
		}
		if failure.Is(err, ErrAuthFailed) {
			return nil, err
		}
	}
	if lk.DOI != "" {
		results, err := l.client.Items(ctx, Query{Q: lk.DOI})
		if err != nil {
			return nil, err
		}
		if item, ok := lo.Find(results, func(it Item) bool { return strings.EqualFold(it.Data.DOI, lk.DOI) }); ok {
			return []Item{item}, nil
		}
	}
	if lk.TitleSearch != "" {
		results, err := l.client.Items(ctx, Query{Q: lk.TitleSearch, Limit: 10})
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			if many {
				return results, nil
			}
			return results[:1], nil
		}
	}
	return nil, failure.New(ErrNotFound,
		failure.Message("Could not find item with the provided identifier"),
		failure.Context{"item_key": lk.ItemKey, "doi": lk.DOI, "title_search": lk.TitleSearch},
	)
}

type StatusChange struct {
	ItemKey   string `json:"item_key"`
	Title     string `json:"title"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// UpdateStatus replaces the status tag of a paper.
func (l *Library) UpdateStatus(ctx context.Context, newStatus string, lk Lookup) (StatusChange, error) {
	newTag, ok := l.cfg.StatusTags.ByStatus(newStatus)
	if !ok {
		return StatusChange{}, failure.New(ErrInvalidStatus,
			failure.Message("Status must be one of: "+strings.Join(Statuses, ", ")),
		)
	}
	items, err := l.find(ctx, lk, false)
	if err != nil {
		return StatusChange{}, err
	}
	item := items[0]
	old := StatusFromTags(item.Data.Tags, l.cfg.StatusTags)

	statusTags := l.cfg.StatusTags.All()
	tags := lo.Reject(item.Data.Tags, func(t Tag, _ int) bool { return lo.Contains(statusTags, t.Tag) })
	tags = append(tags, Tag{Tag: newTag})
	if err := l.client.SetTags(ctx, item, tags); err != nil {
		return StatusChange{}, err
	}
	return StatusChange{
		ItemKey:   item.Key,
		Title:     item.Data.Title,
		OldStatus: old,
		NewStatus: newStatus,
	}, nil
}

// ByStatus filters project papers. status "all" returns everything.
func (l *Library) ByStatus(ctx context.Context, project, status string) ([]Paper, error) {
	if status != "all" && !lo.Contains(Statuses, status) {
		return nil, failure.New(ErrInvalidStatus,
			failure.Message("Status must be one of: "+strings.Join(append(Statuses, "all"), ", ")),
		)
	}
	papers, err := l.ProjectPapers(ctx, project, 0)
	if err != nil {
		return nil, err
	}
	if status == "all" {
		return papers, nil
	}
	return lo.Filter(papers, func(p Paper, _ int) bool { return p.Status == status }), nil
}

// Search queries the project collection when one is configured, else the whole library.
func (l *Library) Search(ctx context.Context, query, project string) ([]Paper, error) {
	var items []Item
	var err error
	if project != "" {
		p, perr := l.cfg.Project(project)
		if perr != nil {
			return nil, perr
		}
		if p.ZoteroCollectionKey != "" {
			items, err = l.client.CollectionItems(ctx, p.ZoteroCollectionKey, Query{Q: query})
		} else {
			items, err = l.client.Items(ctx, Query{Q: query})
		}
	} else {
		items, err = l.client.Items(ctx, Query{Q: query})
	}
	if err != nil {
		return nil, err
	}
	return lo.Map(items, func(it Item, _ int) Paper { return ToPaper(it, l.cfg.StatusTags) }), nil
}

type CitationKeyResult struct {
	ItemKey     string `json:"item_key"`
	CitationKey string `json:"citation_key"`
	Title       string `json:"title"`
	Authors     string `json:"authors"`
	Year        string `json:"year"`
	PDFFilename string `json:"pdf_filename"`
}

// CitationKeys resolves Better BibTeX keys. A title search may match several items.
func (l *Library) CitationKeys(ctx context.Context, lk Lookup) ([]CitationKeyResult, error) {
	items, err := l.find(ctx, lk, true)
	if err != nil {
		return nil, err
	}
	return lo.Map(items, func(it Item, _ int) CitationKeyResult {
		p := ToPaper(it, l.cfg.StatusTags)
		return CitationKeyResult{
			ItemKey:     p.ItemKey,
			CitationKey: p.CitationKey,
			Title:       it.Data.Title,
			Authors:     p.Authors,
			Year:        p.Year,
			PDFFilename: p.PDFFilename,
		}
	}), nil
}

// DeletePaper removes a paper. Without confirm it fails with
// CONFIRMATION_REQUIRED and returns the paper that would be deleted.
func (l *Library) DeletePaper(ctx context.Context, lk Lookup, confirm bool) (Paper, error) {
	items, err := l.find(ctx, lk, false)
	if err != nil {
		return Paper{}, err
	}
	item := items[0]
	paper := ToPaper(item, l.cfg.StatusTags)
	if !confirm {
		return paper, failure.New(ErrConfirmationRequired,
			failure.Message(fmt.Sprintf("Deleting '%s' cannot be undone. Call again with confirm=true.", paper.Title)),
			failure.Context{"item_key": paper.ItemKey},
		)
	}
	if err := l.client.DeleteItem(ctx, item); err != nil {
		return Paper{}, err
	}
	return paper, nil
}
