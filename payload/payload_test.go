package payload

// These tests cover the payload preparation steps applied before any record
// reaches the portal.

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stanfordbioinformatics/encsubmit/profiles"
)

// a hand-built experiment schema for shape checks
func experimentSchema() *profiles.Schema {
	return &profiles.Schema{
		Name: "experiment",
		Properties: map[string]profiles.Property{
			"award":           {Kind: profiles.KindScalar},
			"lab":             {Kind: profiles.KindScalar},
			"description":     {Kind: profiles.KindScalar},
			"aliases":         {Kind: profiles.KindArray, ItemKind: profiles.KindScalar},
			"documents":       {Kind: profiles.KindArray, ItemKind: profiles.KindScalar},
			"attachment":      {Kind: profiles.KindObject},
			"assay_term_name": {Kind: profiles.KindScalar},
		},
		Required: []string{"award", "lab", "assay_term_name"},
	}
}

// tests extraction of the reserved keys
func TestReservedKeys(t *testing.T) {
	record := map[string]any{
		ProfileKey:    "experiment",
		IdKey:         "michael-snyder:chip-1",
		"description": "a fine experiment",
	}

	profile, ok := Profile(record)
	assert.True(t, ok)
	assert.Equal(t, "experiment", profile)

	id, ok := RecordId(record)
	assert.True(t, ok)
	assert.Equal(t, "michael-snyder:chip-1", id)

	stripped := StripReserved(record)
	assert.Equal(t, map[string]any{"description": "a fine experiment"}, stripped)
	// the original record is untouched
	assert.Contains(t, record, ProfileKey)

	_, ok = Profile(map[string]any{})
	assert.False(t, ok)
}

// tests scrubbing portal-hostile characters from aliases
func TestCleanAlias(t *testing.T) {
	assert.Equal(t, "michael-snyder:hg19_chr1", CleanAlias("michael-snyder:hg19/chr1"))
	assert.Equal(t, "michael-snyder:a_b", CleanAlias(`michael-snyder:a\b`))
	assert.Equal(t, "michael-snyder:rep1", CleanAlias("michael-snyder:rep#1"))
}

// tests alias cleaning, prefixing, sorting, and deduplication in one pass
func TestNormalizeAliases(t *testing.T) {
	record := map[string]any{
		"aliases": []any{"chip#1/input", "michael-snyder:chip-2", "chip-2"},
	}
	err := NormalizeAliases(record, "michael-snyder")
	assert.Nil(t, err)
	assert.Equal(t, []string{"michael-snyder:chip-2", "michael-snyder:chip1_input"},
		record["aliases"])

	// normalization is idempotent
	assert.Nil(t, NormalizeAliases(record, "michael-snyder"))
	assert.Equal(t, []string{"michael-snyder:chip-2", "michael-snyder:chip1_input"},
		record["aliases"])

	// an unprefixed alias with no configured prefix is an error
	err = NormalizeAliases(map[string]any{"aliases": []string{"chip-1"}}, "")
	var missing *MissingPrefixError
	assert.ErrorAs(t, err, &missing)
	assert.Equal(t, "chip-1", missing.Alias)

	// records without aliases pass through
	assert.Nil(t, NormalizeAliases(map[string]any{"description": "x"}, "michael-snyder"))
}

// tests filling in award and lab from configured defaults
func TestApplyOwnershipDefaults(t *testing.T) {
	schema := experimentSchema()

	record := map[string]any{"assay_term_name": "ChIP-seq"}
	err := ApplyOwnershipDefaults(record, schema, "michael-snyder", "U41HG006992")
	assert.Nil(t, err)
	assert.Equal(t, "michael-snyder", record["lab"])
	assert.Equal(t, "U41HG006992", record["award"])

	// explicit values win over the defaults
	record = map[string]any{"lab": "j-michael-cherry", "award": "other"}
	err = ApplyOwnershipDefaults(record, schema, "michael-snyder", "U41HG006992")
	assert.Nil(t, err)
	assert.Equal(t, "j-michael-cherry", record["lab"])

	// no award anywhere is an error
	err = ApplyOwnershipDefaults(map[string]any{}, schema, "michael-snyder", "")
	var noAward *AwardPropertyMissingError
	assert.ErrorAs(t, err, &noAward)

	// profiles without an award property are exempt
	plain := &profiles.Schema{Name: "user", Properties: map[string]profiles.Property{}}
	assert.Nil(t, ApplyOwnershipDefaults(map[string]any{}, plain, "", ""))
}

// tests expanding the attachment shorthand into a base64 data URL
func TestExpandAttachment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fields.as")
	assert.Nil(t, os.WriteFile(path, []byte("table narrowPeak\n"), 0644))

	record := map[string]any{"attachment": map[string]any{"path": path}}
	err := ExpandAttachment(record)
	assert.Nil(t, err)
	attachment := record["attachment"].(map[string]any)
	assert.Equal(t, "fields.as", attachment["download"])
	assert.Equal(t, "text/autosql", attachment["type"])
	assert.Equal(t, "data:text/autosql;base64,dGFibGUgbmFycm93UGVhawo=",
		attachment["href"])

	// an extension nobody recognizes is an error
	weird := filepath.Join(dir, "notes.xyzzy")
	assert.Nil(t, os.WriteFile(weird, []byte("?"), 0644))
	err = ExpandAttachment(map[string]any{"attachment": map[string]any{"path": weird}})
	var unknown *UnknownMimeTypeError
	assert.ErrorAs(t, err, &unknown)

	// attachments already in the full form are left alone
	full := map[string]any{"attachment": map[string]any{
		"download": "protocol.pdf",
		"type":     "application/pdf",
		"href":     "data:application/pdf;base64,JVBERg==",
	}}
	assert.Nil(t, ExpandAttachment(full))
	assert.Equal(t, "data:application/pdf;base64,JVBERg==",
		full["attachment"].(map[string]any)["href"])
}

// tests filling in md5sum and file_size on file records
func TestEnrichFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reads.fastq")
	assert.Nil(t, os.WriteFile(path, []byte("@read1\nGATTACA\n"), 0644))

	record := map[string]any{"submitted_file_name": path}
	err := EnrichFile(context.Background(), record)
	assert.Nil(t, err)
	assert.Len(t, record["md5sum"], 32)
	assert.Equal(t, int64(15), record["file_size"])

	// explicit checksums are preserved
	record = map[string]any{"submitted_file_name": path, "md5sum": "cafef00d"}
	assert.Nil(t, EnrichFile(context.Background(), record))
	assert.Equal(t, "cafef00d", record["md5sum"])

	// empty values count as absent and get recomputed
	record = map[string]any{
		"submitted_file_name": path,
		"md5sum":              "",
		"file_size":           float64(0),
	}
	assert.Nil(t, EnrichFile(context.Background(), record))
	assert.Len(t, record["md5sum"], 32)
	assert.Equal(t, int64(15), record["file_size"])

	// a portal-side path that doesn't exist locally is skipped, not an error
	record = map[string]any{"submitted_file_name": "/2024/01/reads.fastq"}
	assert.Nil(t, EnrichFile(context.Background(), record))
	assert.NotContains(t, record, "md5sum")
}

// tests the runtime shape checks against a schema
func TestValidateKinds(t *testing.T) {
	schema := experimentSchema()

	good := map[string]any{
		ProfileKey:    "experiment",
		"description": "a fine experiment",
		"aliases":     []string{"michael-snyder:chip-1"},
		"attachment":  map[string]any{"path": "protocol.pdf"},
	}
	assert.Nil(t, ValidateKinds(good, schema))

	// a scalar where an array belongs
	err := ValidateKinds(map[string]any{"aliases": "michael-snyder:chip-1"}, schema)
	var schemaErr *SchemaError
	assert.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "aliases", schemaErr.Property)
	assert.Equal(t, "an array", schemaErr.Expected)

	// an array where a scalar belongs
	err = ValidateKinds(map[string]any{"description": []any{"x"}}, schema)
	assert.ErrorAs(t, err, &schemaErr)

	// properties the schema doesn't know about are waved through
	assert.Nil(t, ValidateKinds(map[string]any{"novel_prop": 42}, schema))
}
