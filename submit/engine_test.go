package submit

// These tests drive the reconciliation engine against an in-memory portal
// stand-in. The HTTP layer itself is covered by the portal package's tests.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stanfordbioinformatics/encsubmit/journal"
	"github.com/stanfordbioinformatics/encsubmit/logging"
	"github.com/stanfordbioinformatics/encsubmit/payload"
	"github.com/stanfordbioinformatics/encsubmit/portal"
	"github.com/stanfordbioinformatics/encsubmit/profiles"
	"github.com/stanfordbioinformatics/encsubmit/upload"
)

// the schema listing the fake portal serves
const FAKE_LISTING string = `
{
  "@type": ["JSONSchemas"],
  "Experiment": {
    "required": ["award", "lab", "assay_term_name"],
    "properties": {
      "accession": {"type": "string", "readonly": true},
      "schema_version": {"type": "string", "notSubmittable": true},
      "award": {"type": "string"},
      "lab": {"type": "string"},
      "assay_term_name": {"type": "string"},
      "description": {"type": "string"},
      "aliases": {"type": "array", "items": {"type": "string"}},
      "documents": {"type": "array", "items": {"type": "string"}}
    }
  },
  "Document": {
    "required": ["award", "lab"],
    "properties": {
      "award": {"type": "string"},
      "lab": {"type": "string"},
      "aliases": {"type": "array", "items": {"type": "string"}},
      "attachment": {"type": "object"},
      "document_type": {"type": "string"}
    }
  },
  "File": {
    "required": ["award", "lab"],
    "properties": {
      "accession": {"type": "string", "readonly": true},
      "award": {"type": "string"},
      "lab": {"type": "string"},
      "aliases": {"type": "array", "items": {"type": "string"}},
      "md5sum": {"type": "string"},
      "file_size": {"type": "integer"},
      "submitted_file_name": {"type": "string"}
    }
  }
}
`

// an in-memory portal with just enough behavior for the engine: records are
// indexed under every identifier they're reachable by
type fakePortal struct {
	records map[string]map[string]any
	posts   []map[string]any
	patches []map[string]any
	puts    []map[string]any

	forbidden  map[string]bool // ids whose records refuse edits
	nextSerial int
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		records:   make(map[string]map[string]any),
		forbidden: make(map[string]bool),
	}
}

// indexes a record under all its identifiers
func (f *fakePortal) index(record map[string]any) {
	if id, ok := record["@id"].(string); ok {
		f.records[strings.Trim(id, "/")] = record
	}
	if accession, ok := record["accession"].(string); ok {
		f.records[accession] = record
	}
	for _, alias := range payload.Aliases(record) {
		f.records[alias] = record
	}
	if md5sum, ok := record["md5sum"].(string); ok && md5sum != "" {
		f.records["md5:"+md5sum] = record
	}
}

// seeds an existing record of the given collection
func (f *fakePortal) seed(collection string, record map[string]any) map[string]any {
	f.nextSerial++
	accession := fmt.Sprintf("ENC%03dAAA", f.nextSerial)
	record["accession"] = accession
	record["@id"] = fmt.Sprintf("/%ss/%s/", collection, accession)
	f.index(record)
	return record
}

func (f *fakePortal) Get(id, frame string) (map[string]any, error) {
	trimmed := strings.Trim(id, "/")
	if trimmed == "profiles" {
		var listing map[string]any
		if err := json.Unmarshal([]byte(FAKE_LISTING), &listing); err != nil {
			return nil, err
		}
		return listing, nil
	}
	if record, found := f.records[trimmed]; found {
		return record, nil
	}
	return nil, &portal.NotFoundError{Id: id}
}

func (f *fakePortal) Post(collection string, record map[string]any) (map[string]any, error) {
	f.posts = append(f.posts, record)
	for _, alias := range payload.Aliases(record) {
		if _, taken := f.records[alias]; taken {
			return nil, &portal.ConflictError{Id: alias}
		}
	}
	return f.seed(collection, clone(record)), nil
}

func (f *fakePortal) Patch(id string, properties map[string]any) (map[string]any, error) {
	trimmed := strings.Trim(id, "/")
	record, found := f.records[trimmed]
	if !found {
		return nil, &portal.NotFoundError{Id: id}
	}
	if f.forbidden[trimmed] {
		return nil, &portal.ForbiddenError{Method: "PATCH", Id: id}
	}
	f.patches = append(f.patches, properties)
	for key, value := range properties {
		record[key] = value
	}
	f.index(record)
	return record, nil
}

func (f *fakePortal) Put(id string, replacement map[string]any) (map[string]any, error) {
	trimmed := strings.Trim(id, "/")
	record, found := f.records[trimmed]
	if !found {
		return nil, &portal.NotFoundError{Id: id}
	}
	if f.forbidden[trimmed] {
		return nil, &portal.ForbiddenError{Method: "PUT", Id: id}
	}
	f.puts = append(f.puts, replacement)
	for key := range record {
		if key != "@id" && key != "accession" {
			delete(record, key)
		}
	}
	for key, value := range replacement {
		record[key] = value
	}
	f.index(record)
	return record, nil
}

// an uploader that only counts
type fakeUploader struct {
	calls []string
	paths []string
}

func (f *fakeUploader) Upload(ctx context.Context, fileId string, opts upload.Options) error {
	f.calls = append(f.calls, fileId)
	f.paths = append(f.paths, opts.SourcePath)
	return nil
}

func testEngine(fake *fakePortal, options ...Option) *Engine {
	options = append([]Option{
		WithDefaults("michael-snyder", "U41HG006992", "michael-snyder"),
	}, options...)
	return NewEngine(fake, profiles.NewRegistry(fake), options...)
}

// tests the identifier derivation order: _enc_id, aliases, md5sum
func TestLookupIDs(t *testing.T) {
	engine := testEngine(newFakePortal())

	ids, err := engine.LookupIDs(map[string]any{
		payload.IdKey: "ENCSR000AAA",
		"aliases":     []string{" michael-snyder:chip-1 ", "michael-snyder:chip-2"},
		"md5sum":      "d41d8cd98f00b204e9800998ecf8427e",
	})
	assert.Nil(t, err)
	assert.Equal(t, []string{
		"ENCSR000AAA",
		"michael-snyder:chip-1",
		"michael-snyder:chip-2",
		"md5:d41d8cd98f00b204e9800998ecf8427e",
	}, ids)

	_, err = engine.LookupIDs(map[string]any{"description": "nothing to go on"})
	var noId *RecordIDNotPresentError
	assert.ErrorAs(t, err, &noId)
}

// tests the probe order: misses continue, the first hit wins, denial aborts
func TestFindExisting(t *testing.T) {
	fake := newFakePortal()
	seeded := fake.seed("experiment", map[string]any{
		"aliases": []string{"michael-snyder:chip-1"},
	})
	engine := testEngine(fake)

	found, err := engine.FindExisting([]string{"michael-snyder:nope", "michael-snyder:chip-1"}, false)
	assert.Nil(t, err)
	assert.Equal(t, seeded["accession"], found["accession"])

	// no hit, lenient vs strict
	found, err = engine.FindExisting([]string{"michael-snyder:nope"}, false)
	assert.Nil(t, err)
	assert.Nil(t, found)
	_, err = engine.FindExisting([]string{"michael-snyder:nope"}, true)
	var notFound *RecordNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

// tests creating a document with an attachment: the transmitted payload gets
// the inlined attachment, the ownership defaults, and untouched aliases
func TestCreateDocumentWithAttachment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocol.txt")
	assert.Nil(t, os.WriteFile(path, []byte("mix gently\n"), 0644))

	fake := newFakePortal()
	engine := testEngine(fake)
	created, err := engine.Create(context.Background(), map[string]any{
		payload.ProfileKey: "document",
		"aliases":          []string{"michael-snyder:protocol-1"},
		"document_type":    "general protocol",
		"attachment":       map[string]any{"path": path},
	}, CreateOptions{})
	assert.Nil(t, err, "Creating a document produced an error: %s", err)

	assert.Len(t, fake.posts, 1)
	posted := fake.posts[0]
	// the reserved keys never travel
	assert.NotContains(t, posted, payload.ProfileKey)
	assert.NotContains(t, posted, payload.IdKey)
	// a pre-prefixed alias passes through untouched
	assert.Equal(t, []string{"michael-snyder:protocol-1"}, posted["aliases"])
	// the configured ownership defaults got filled in
	assert.Equal(t, "michael-snyder", posted["lab"])
	assert.Equal(t, "U41HG006992", posted["award"])
	// the attachment went up inlined
	attachment := posted["attachment"].(map[string]any)
	assert.Equal(t, "protocol.txt", attachment["download"])
	assert.Equal(t, "text/plain", attachment["type"])
	assert.True(t, strings.HasPrefix(attachment["href"].(string), "data:text/plain;base64,"))

	assert.NotEmpty(t, created["accession"])
}

// tests the up-front payload checks on create
func TestCreateRejectsBadPayloads(t *testing.T) {
	engine := testEngine(newFakePortal())

	_, err := engine.Create(context.Background(), map[string]any{"description": "x"}, CreateOptions{})
	var noProfile *ProfileNotSpecifiedError
	assert.ErrorAs(t, err, &noProfile)

	_, err = engine.Create(context.Background(), map[string]any{
		payload.ProfileKey: "experiment",
		"assay_term_name":  "ChIP-seq",
	}, CreateOptions{})
	var noAlias *MissingAliasError
	assert.ErrorAs(t, err, &noAlias)

	// the alias requirement can be waived
	_, err = engine.Create(context.Background(), map[string]any{
		payload.ProfileKey: "experiment",
		"assay_term_name":  "ChIP-seq",
	}, CreateOptions{NoAliases: true})
	assert.Nil(t, err)

	// a kind mismatch is caught before transmission
	_, err = engine.Create(context.Background(), map[string]any{
		payload.ProfileKey: "experiment",
		"aliases":          []string{"michael-snyder:chip-1"},
		"assay_term_name":  []any{"ChIP-seq"},
	}, CreateOptions{})
	var schemaErr *payload.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

// tests that a create colliding with an existing record resolves to that
// record instead of failing
func TestCreateConflictReturnsExisting(t *testing.T) {
	fake := newFakePortal()
	existing := fake.seed("experiment", map[string]any{
		"aliases": []string{"michael-snyder:chip-1"},
		"status":  "released",
	})
	engine := testEngine(fake)

	record, err := engine.Create(context.Background(), map[string]any{
		payload.ProfileKey: "experiment",
		"aliases":          []string{"michael-snyder:chip-1"},
		"assay_term_name":  "ChIP-seq",
	}, CreateOptions{})
	assert.Nil(t, err, "A conflicting create produced an error: %s", err)
	assert.Equal(t, existing["accession"], record["accession"])
}

// tests that sending the same payload repeatedly converges: one create, then
// edits that change nothing material
func TestUpsertIsIdempotent(t *testing.T) {
	fake := newFakePortal()
	engine := testEngine(fake)
	record := map[string]any{
		payload.ProfileKey: "experiment",
		"aliases":          []string{"michael-snyder:chip-1"},
		"assay_term_name":  "ChIP-seq",
		"documents":        []string{"michael-snyder:protocol-1"},
	}

	first, err := engine.Upsert(context.Background(), record, UpsertOptions{})
	assert.Nil(t, err)
	assert.Len(t, fake.posts, 1)

	second, err := engine.Upsert(context.Background(), record, UpsertOptions{})
	assert.Nil(t, err)
	// no second create happened
	assert.Len(t, fake.posts, 1)
	assert.Equal(t, first["accession"], second["accession"])
	assert.Equal(t, []string{"michael-snyder:protocol-1"}, second["documents"])

	third, err := engine.Upsert(context.Background(), record, UpsertOptions{})
	assert.Nil(t, err)
	assert.Equal(t, second["documents"], third["documents"])
}

// tests that array edits extend the portal's values as a stable set union
func TestUpdateMergesArrays(t *testing.T) {
	fake := newFakePortal()
	seeded := fake.seed("experiment", map[string]any{
		"aliases":   []string{"michael-snyder:chip-1"},
		"documents": []any{"/documents/protocol.pdf/"},
	})
	engine := testEngine(fake)

	edit := map[string]any{
		payload.IdKey: seeded["@id"].(string),
		"documents":   []string{"protocol.pdf", "manual.pdf"},
	}
	updated, err := engine.Update(context.Background(), edit, UpdateOptions{})
	assert.Nil(t, err)
	// payload order first, the path-qualified duplicate collapsed away
	assert.Equal(t, []string{"protocol.pdf", "manual.pdf"}, updated["documents"])

	// repeating the same edit changes nothing
	updated, err = engine.Update(context.Background(), edit, UpdateOptions{})
	assert.Nil(t, err)
	assert.Equal(t, []string{"protocol.pdf", "manual.pdf"}, updated["documents"])

	// replacement mode really replaces
	edit["documents"] = []string{"only.pdf"}
	updated, err = engine.Update(context.Background(), edit, UpdateOptions{ReplaceArrays: true})
	assert.Nil(t, err)
	assert.Equal(t, []string{"only.pdf"}, updated["documents"])

	// merging against a property the record doesn't hold yet still dedupes
	bare := fake.seed("experiment", map[string]any{
		"aliases": []string{"michael-snyder:chip-2"},
	})
	updated, err = engine.Update(context.Background(), map[string]any{
		payload.IdKey: bare["@id"].(string),
		"documents":   []string{"protocol.pdf", "protocol.pdf"},
	}, UpdateOptions{})
	assert.Nil(t, err)
	assert.Equal(t, []string{"protocol.pdf"}, updated["documents"])
}

// tests the contract violations and soft failures around Update
func TestUpdateEdgeCases(t *testing.T) {
	fake := newFakePortal()
	seeded := fake.seed("experiment", map[string]any{
		"aliases":     []string{"michael-snyder:chip-1"},
		"description": "before",
	})
	engine := testEngine(fake)

	// no id key is a programming error
	assert.PanicsWithValue(t, MissingIdKey, func() {
		engine.Update(context.Background(), map[string]any{"description": "x"}, UpdateOptions{})
	})

	// a record that doesn't exist yields an empty result, not an error
	result, err := engine.Update(context.Background(), map[string]any{
		payload.IdKey: "ENCSR999ZZZ",
		"description": "x",
	}, UpdateOptions{})
	assert.Nil(t, err)
	assert.Empty(t, result)

	// a denied edit is surfaced by default
	fake.forbidden[strings.Trim(seeded["@id"].(string), "/")] = true
	_, err = engine.Update(context.Background(), map[string]any{
		payload.IdKey: seeded["@id"].(string),
		"description": "after",
	}, UpdateOptions{})
	var forbidden *portal.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	// unless the caller opts into soft recovery
	result, err = engine.Update(context.Background(), map[string]any{
		payload.IdKey: seeded["@id"].(string),
		"description": "after",
	}, UpdateOptions{IgnoreForbidden: true})
	assert.Nil(t, err)
	assert.Equal(t, "before", result["description"])
}

// tests that a rejected mutation leaves a terse error trace plus the payload
// detail in the debug stream
func TestRejectedEditIsLogged(t *testing.T) {
	var errStream, debugStream bytes.Buffer
	logger := &logging.Logger{
		Debug: log.New(&debugStream, "", 0),
		Error: log.New(&errStream, "", 0),
	}

	fake := newFakePortal()
	seeded := fake.seed("experiment", map[string]any{
		"aliases": []string{"michael-snyder:chip-1"},
	})
	fake.forbidden[strings.Trim(seeded["@id"].(string), "/")] = true
	engine := testEngine(fake, WithLogger(logger))

	_, err := engine.Update(context.Background(), map[string]any{
		payload.IdKey: seeded["@id"].(string),
		"description": "after",
	}, UpdateOptions{})
	assert.NotNil(t, err)
	assert.Contains(t, errStream.String(), "rejected the edit")
	assert.Contains(t, debugStream.String(), "after")
}

// tests that hooks registered for edits fire on success and never on dry runs
func TestEditHooksFire(t *testing.T) {
	fake := newFakePortal()
	seeded := fake.seed("experiment", map[string]any{
		"aliases":         []string{"michael-snyder:chip-1"},
		"award":           "U41HG006992",
		"lab":             "michael-snyder",
		"assay_term_name": "ChIP-seq",
		"description":     "stale",
	})
	engine := testEngine(fake)

	var fired []string
	engine.RegisterHook("PATCH", func(ctx context.Context, e *Engine, schema *profiles.Schema, record map[string]any) error {
		fired = append(fired, "PATCH "+recordIdentifier(record, ""))
		return nil
	})
	engine.RegisterHook("PUT", func(ctx context.Context, e *Engine, schema *profiles.Schema, record map[string]any) error {
		fired = append(fired, "PUT "+recordIdentifier(record, ""))
		return nil
	})

	_, err := engine.Update(context.Background(), map[string]any{
		payload.IdKey: seeded["@id"].(string),
		"description": "fresh",
	}, UpdateOptions{})
	assert.Nil(t, err)

	_, err = engine.RemoveAndPatch(context.Background(), []string{"description"},
		map[string]any{
			payload.ProfileKey: "experiment",
			payload.IdKey:      seeded["@id"].(string),
		}, UpdateOptions{})
	assert.Nil(t, err)

	id := seeded["@id"].(string)
	assert.Equal(t, []string{"PATCH " + id, "PUT " + id}, fired)

	// dry runs never reach the hooks
	dryRun := testEngine(fake, WithDryRun(true))
	dryRun.RegisterHook("PATCH", func(ctx context.Context, e *Engine, schema *profiles.Schema, record map[string]any) error {
		fired = append(fired, "dry")
		return nil
	})
	_, err = dryRun.Update(context.Background(), map[string]any{
		payload.IdKey: seeded["@id"].(string),
		"description": "drier",
	}, UpdateOptions{})
	assert.Nil(t, err)
	assert.NotContains(t, fired, "dry")
}

// tests that a dry run reads but never writes, uploads, or journals
func TestDryRunPerformsNoMutations(t *testing.T) {
	fake := newFakePortal()
	seeded := fake.seed("experiment", map[string]any{
		"aliases":   []string{"michael-snyder:chip-1"},
		"documents": []any{"protocol.pdf"},
	})
	uploader := &fakeUploader{}
	engine := testEngine(fake, WithDryRun(true), WithUploader(uploader))

	planned, err := engine.Create(context.Background(), map[string]any{
		payload.ProfileKey: "file",
		"aliases":          []string{"michael-snyder:reads-1"},
	}, CreateOptions{})
	assert.Nil(t, err)
	// the prepared payload comes back for inspection
	assert.Equal(t, "michael-snyder", planned["lab"])

	_, err = engine.Update(context.Background(), map[string]any{
		payload.IdKey: seeded["@id"].(string),
		"documents":   []string{"manual.pdf"},
	}, UpdateOptions{})
	assert.Nil(t, err)

	_, err = engine.Upsert(context.Background(), map[string]any{
		payload.ProfileKey: "experiment",
		"aliases":          []string{"michael-snyder:chip-9"},
		"assay_term_name":  "ATAC-seq",
	}, UpsertOptions{})
	assert.Nil(t, err)

	assert.Empty(t, fake.posts)
	assert.Empty(t, fake.patches)
	assert.Empty(t, fake.puts)
	assert.Empty(t, uploader.calls)
}

// tests the post-create upload hook for file records
func TestCreateUploadsFileData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reads.fastq")
	assert.Nil(t, os.WriteFile(path, []byte("@read1\nGATTACA\n"), 0644))

	fake := newFakePortal()
	uploader := &fakeUploader{}
	engine := testEngine(fake, WithUploader(uploader))

	created, err := engine.Create(context.Background(), map[string]any{
		payload.ProfileKey:    "file",
		"aliases":             []string{"michael-snyder:reads-1"},
		"submitted_file_name": path,
	}, CreateOptions{})
	assert.Nil(t, err)
	// the payload was enriched with the data's facts before posting
	assert.Len(t, fake.posts[0]["md5sum"], 32)
	assert.Equal(t, int64(15), fake.posts[0]["file_size"])
	// and the data went up right after
	assert.Equal(t, []string{created["@id"].(string)}, uploader.calls)
	assert.Equal(t, []string{path}, uploader.paths)

	// NoUpload suppresses the hook
	uploader.calls = nil
	_, err = engine.Create(context.Background(), map[string]any{
		payload.ProfileKey:    "file",
		"aliases":             []string{"michael-snyder:reads-2"},
		"submitted_file_name": path,
		"md5sum":              "0123456789abcdef0123456789abcdef",
	}, CreateOptions{NoUpload: true})
	assert.Nil(t, err)
	assert.Empty(t, uploader.calls)
}

// tests that every accepted mutation lands in the submission journal
func TestSubmissionsAreJournaled(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "submissions.db")
	assert.Nil(t, journal.Init(dbPath))
	defer journal.Finalize()

	fake := newFakePortal()
	engine := testEngine(fake, WithJournal())
	start := time.Now().Add(-time.Minute)

	created, err := engine.Create(context.Background(), map[string]any{
		payload.ProfileKey: "experiment",
		"aliases":          []string{"michael-snyder:chip-1"},
		"assay_term_name":  "ChIP-seq",
	}, CreateOptions{})
	assert.Nil(t, err)

	_, err = engine.Update(context.Background(), map[string]any{
		payload.IdKey: created["@id"].(string),
		"description": "updated",
	}, UpdateOptions{})
	assert.Nil(t, err)

	records, err := journal.Submissions(start, time.Now().Add(time.Minute))
	assert.Nil(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, "POST", records[0].Method)
	assert.Equal(t, "experiment", records[0].Profile)
	assert.Equal(t, "michael-snyder:chip-1", records[0].Alias)
	assert.Equal(t, created["@id"].(string), records[0].PortalId)
	assert.Equal(t, "PATCH", records[1].Method)
}

// tests removing properties while patching in one replacement
func TestRemoveAndPatch(t *testing.T) {
	fake := newFakePortal()
	seeded := fake.seed("experiment", map[string]any{
		"aliases":         []string{"michael-snyder:chip-1"},
		"award":           "U41HG006992",
		"lab":             "michael-snyder",
		"assay_term_name": "ChIP-seq",
		"description":     "stale",
		"schema_version":  "30",
	})
	engine := testEngine(fake)

	record, err := engine.RemoveAndPatch(context.Background(),
		[]string{"description"},
		map[string]any{
			payload.ProfileKey: "experiment",
			payload.IdKey:      seeded["@id"].(string),
			"documents":        []string{"michael-snyder:protocol-1"},
		}, UpdateOptions{})
	assert.Nil(t, err, "RemoveAndPatch produced an error: %s", err)
	assert.NotContains(t, record, "description")
	assert.Equal(t, []string{"michael-snyder:protocol-1"}, record["documents"])
	// the replacement body excluded portal-maintained properties
	assert.Len(t, fake.puts, 1)
	assert.NotContains(t, fake.puts[0], "schema_version")

	// required properties refuse removal
	_, err = engine.RemoveAndPatch(context.Background(),
		[]string{"award"},
		map[string]any{
			payload.ProfileKey: "experiment",
			payload.IdKey:      seeded["@id"].(string),
		}, UpdateOptions{})
	assert.NotNil(t, err)
}
