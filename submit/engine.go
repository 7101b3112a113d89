// Copyright (c) 2024 The Board of Trustees of the Leland Stanford Junior University
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// package submit reconciles user-supplied record payloads against the
// portal: it decides whether each record already exists, creates or edits it
// accordingly, and keeps an audit trail of everything it sends.
package submit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stanfordbioinformatics/encsubmit/journal"
	"github.com/stanfordbioinformatics/encsubmit/logging"
	"github.com/stanfordbioinformatics/encsubmit/payload"
	"github.com/stanfordbioinformatics/encsubmit/portal"
	"github.com/stanfordbioinformatics/encsubmit/profiles"
	"github.com/stanfordbioinformatics/encsubmit/upload"
)

// the parts of the portal client the engine relies on
type portalAPI interface {
	Get(id, frame string) (map[string]any, error)
	Post(collection string, record map[string]any) (map[string]any, error)
	Patch(id string, properties map[string]any) (map[string]any, error)
	Put(id string, record map[string]any) (map[string]any, error)
}

// anything that can move a file record's data into the portal's bucket
type Uploader interface {
	Upload(ctx context.Context, fileId string, opts upload.Options) error
}

// Engine reconciles record payloads against a single portal instance.
type Engine struct {
	client   portalAPI
	registry *profiles.Registry
	uploader Uploader
	logger   *logging.Logger

	// submission defaults
	lab, award, aliasPrefix string

	// when set, mutating calls are planned and logged but never sent
	dryRun bool
	// when set, accepted mutations are recorded in the submission journal
	useJournal bool

	// after-submit hooks, keyed by the HTTP method that triggers them
	hooks map[string][]Hook
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaults supplies the lab and award applied to records that omit them,
// and the prefix added to unprefixed aliases.
func WithDefaults(lab, award, aliasPrefix string) Option {
	return func(e *Engine) {
		e.lab = lab
		e.award = award
		e.aliasPrefix = aliasPrefix
	}
}

// WithUploader wires in an upload coordinator, enabling the post-create
// upload of file record data.
func WithUploader(uploader Uploader) Option {
	return func(e *Engine) {
		e.uploader = uploader
	}
}

// WithJournal turns on journaling of accepted mutations. The journal itself
// must be opened with journal.Init beforehand.
func WithJournal() Option {
	return func(e *Engine) {
		e.useJournal = true
	}
}

// WithDryRun puts the engine in dry-run mode: reads execute, mutations and
// hooks don't.
func WithDryRun(dryRun bool) Option {
	return func(e *Engine) {
		e.dryRun = dryRun
	}
}

// WithLogger replaces the engine's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates a reconciliation engine from a portal client and a
// schema registry.
func NewEngine(client portalAPI, registry *profiles.Registry, options ...Option) *Engine {
	e := &Engine{
		client:   client,
		registry: registry,
		logger:   logging.Discard(),
		hooks:    make(map[string][]Hook),
	}
	for _, option := range options {
		option(e)
	}
	e.hooks["POST"] = append(e.hooks["POST"], uploadFileData)
	return e
}

// LookupIDs derives the portal identifiers a record can be found under, most
// authoritative first: the explicit _enc_id, then each alias in payload
// order, then the md5sum for file records.
func (e *Engine) LookupIDs(record map[string]any) ([]string, error) {
	ids := make([]string, 0, 4)
	if id, ok := payload.RecordId(record); ok {
		ids = append(ids, strings.TrimSpace(id))
	}
	for _, alias := range payload.Aliases(record) {
		if alias = strings.TrimSpace(alias); alias != "" {
			ids = append(ids, alias)
		}
	}
	if md5sum, ok := record["md5sum"].(string); ok && md5sum != "" {
		ids = append(ids, "md5:"+strings.TrimSpace(md5sum))
	}
	if len(ids) == 0 {
		return nil, &RecordIDNotPresentError{}
	}
	return ids, nil
}

// FindExisting probes the portal for a record under each of the given
// identifiers in order, returning the first hit. A missing identifier means
// trying the next; a denied one aborts the search, since the record may well
// exist out of view. No hit returns nil, or RecordNotFoundError when strict.
func (e *Engine) FindExisting(ids []string, strict bool) (map[string]any, error) {
	for _, id := range ids {
		record, err := e.client.Get(id, "")
		if err == nil {
			return record, nil
		}
		if _, notFound := err.(*portal.NotFoundError); notFound {
			continue
		}
		return nil, err
	}
	if strict {
		return nil, &RecordNotFoundError{Ids: ids}
	}
	return nil, nil
}

// CreateOptions steer Create.
type CreateOptions struct {
	// waive the requirement that records of alias-bearing profiles carry
	// at least one alias
	NoAliases bool
	// skip the post-create data upload for file records
	NoUpload bool
}

// Create registers a brand-new record on the portal. The payload names its
// profile under the _profile key. A conflict with an existing record
// resolves to that record when one of the submitted aliases finds it, making
// repeated creates of the same record a no-op.
func (e *Engine) Create(ctx context.Context, record map[string]any, opts CreateOptions) (map[string]any, error) {
	profileName, ok := payload.Profile(record)
	if !ok {
		return nil, &ProfileNotSpecifiedError{}
	}
	schema, err := e.registry.Lookup(profileName)
	if err != nil {
		return nil, err
	}

	work := clone(record)
	if err := payload.NormalizeAliases(work, e.aliasPrefix); err != nil {
		return nil, err
	}
	if err := payload.ExpandAttachment(work); err != nil {
		return nil, err
	}
	if err := payload.ApplyOwnershipDefaults(work, schema, e.lab, e.award); err != nil {
		return nil, err
	}
	if schema.Name == "file" {
		if err := payload.EnrichFile(ctx, work); err != nil {
			return nil, err
		}
	}
	if err := payload.ValidateKinds(work, schema); err != nil {
		return nil, err
	}
	aliases := payload.Aliases(work)
	if schema.HasAliases() && !opts.NoAliases && len(aliases) == 0 {
		return nil, &MissingAliasError{Profile: schema.Name}
	}

	body := payload.StripReserved(work)
	if e.dryRun {
		e.logger.Debugf("Dry run: would create a %s record (%s).",
			schema.Name, strings.Join(aliases, ", "))
		return body, nil
	}

	created, err := e.client.Post(schema.Name, body)
	if err != nil {
		if _, conflict := err.(*portal.ConflictError); conflict {
			existing, probeErr := e.FindExisting(aliases, false)
			if probeErr == nil && existing != nil {
				e.logger.Debugf("A %s record with these aliases already exists; "+
					"returning it instead.", schema.Name)
				return existing, nil
			}
		}
		e.logger.Errorf("The portal rejected the new %s record: %s", schema.Name, err)
		e.logger.Debugf("The rejected payload: %v", body)
		return nil, err
	}

	e.journalSubmission("POST", schema.Name, aliases, created)
	if !opts.NoUpload {
		if err := e.runHooks(ctx, "POST", schema, created); err != nil {
			return created, err
		}
	}
	return created, nil
}

// UpdateOptions steer Update.
type UpdateOptions struct {
	// replace array properties outright instead of merging them with the
	// portal's current values
	ReplaceArrays bool
	// swallow a denied edit and return the record as it stands instead of
	// surfacing the error
	IgnoreForbidden bool
}

// Update edits an existing record, identified by the payload's _enc_id key.
// Calling Update without that key is a programming error and panics. A
// record that doesn't exist yields an empty result; a denied edit is an
// error unless IgnoreForbidden is set, in which case the unedited record
// comes back.
func (e *Engine) Update(ctx context.Context, record map[string]any, opts UpdateOptions) (map[string]any, error) {
	id, ok := payload.RecordId(record)
	if !ok {
		panic(MissingIdKey)
	}

	snapshot, err := e.client.Get(id, portal.FrameEdit)
	if err != nil {
		if _, notFound := err.(*portal.NotFoundError); notFound {
			return map[string]any{}, nil
		}
		return nil, err
	}

	work := clone(record)
	if err := payload.NormalizeAliases(work, e.aliasPrefix); err != nil {
		return nil, err
	}
	if err := payload.ExpandAttachment(work); err != nil {
		return nil, err
	}
	if !opts.ReplaceArrays {
		e.mergeArrays(work, snapshot)
	}
	var schema *profiles.Schema
	if profileName, ok := payload.Profile(work); ok {
		if schema, err = e.registry.Lookup(profileName); err != nil {
			return nil, err
		}
		if err := payload.ValidateKinds(work, schema); err != nil {
			return nil, err
		}
	}

	body := payload.StripReserved(work)
	if e.dryRun {
		e.logger.Debugf("Dry run: would edit the record %s.", id)
		return body, nil
	}

	edited, err := e.client.Patch(id, body)
	if err != nil {
		if _, forbidden := err.(*portal.ForbiddenError); forbidden && opts.IgnoreForbidden {
			e.logger.Errorf("The portal denied the edit of %s; returning the record untouched.", id)
			return snapshot, nil
		}
		e.logger.Errorf("The portal rejected the edit of %s: %s", id, err)
		e.logger.Debugf("The rejected payload: %v", body)
		return nil, err
	}

	profileName, _ := payload.Profile(record)
	e.journalSubmission("PATCH", profileName, payload.Aliases(work), edited)
	if err := e.runHooks(ctx, "PATCH", schema, edited); err != nil {
		return edited, err
	}
	return edited, nil
}

// UpsertOptions steer Upsert.
type UpsertOptions struct {
	Create CreateOptions
	Update UpdateOptions
}

// Upsert is the engine's single entry point for "make the portal look like
// this": it finds the record under any of its identifiers and either edits
// it or creates it.
func (e *Engine) Upsert(ctx context.Context, record map[string]any, opts UpsertOptions) (map[string]any, error) {
	ids, err := e.LookupIDs(record)
	if err != nil {
		return nil, err
	}
	existing, err := e.FindExisting(ids, false)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return e.Create(ctx, record, opts.Create)
	}

	work := clone(record)
	work[payload.IdKey] = recordIdentifier(existing, ids[0])
	return e.Update(ctx, work, opts.Update)
}

// RemoveAndPatch removes the named properties from an existing record and
// applies the given edits in a single replacement. Required, read-only, and
// non-submittable properties refuse removal.
func (e *Engine) RemoveAndPatch(ctx context.Context, props []string, record map[string]any, opts UpdateOptions) (map[string]any, error) {
	id, ok := payload.RecordId(record)
	if !ok {
		panic(MissingIdKey)
	}
	profileName, ok := payload.Profile(record)
	if !ok {
		return nil, &ProfileNotSpecifiedError{}
	}
	schema, err := e.registry.Lookup(profileName)
	if err != nil {
		return nil, err
	}

	snapshot, err := e.client.Get(id, portal.FrameEdit)
	if err != nil {
		if _, notFound := err.(*portal.NotFoundError); notFound {
			return nil, &RecordNotFoundError{Ids: []string{id}}
		}
		return nil, err
	}

	replacement := clone(snapshot)
	for _, prop := range props {
		for _, required := range schema.Required {
			if prop == required {
				return nil, fmt.Errorf("The required property %s can't be removed from a %s record.",
					prop, schema.Name)
			}
		}
		if !schema.Writable(prop) {
			return nil, fmt.Errorf("The portal-maintained property %s can't be removed.", prop)
		}
		delete(replacement, prop)
	}

	work := clone(record)
	if err := payload.NormalizeAliases(work, e.aliasPrefix); err != nil {
		return nil, err
	}
	if err := payload.ExpandAttachment(work); err != nil {
		return nil, err
	}
	for key, value := range payload.StripReserved(work) {
		replacement[key] = value
	}
	if err := payload.ValidateKinds(replacement, schema); err != nil {
		return nil, err
	}

	body := schema.FilterNonWritable(replacement)
	if e.dryRun {
		e.logger.Debugf("Dry run: would replace the record %s without %s.",
			id, strings.Join(props, ", "))
		return body, nil
	}

	replaced, err := e.client.Put(id, body)
	if err != nil {
		if _, forbidden := err.(*portal.ForbiddenError); forbidden && opts.IgnoreForbidden {
			e.logger.Errorf("The portal denied the replacement of %s; returning the record untouched.", id)
			return snapshot, nil
		}
		e.logger.Errorf("The portal rejected the replacement of %s: %s", id, err)
		e.logger.Debugf("The rejected payload: %v", body)
		return nil, err
	}
	e.journalSubmission("PUT", schema.Name, payload.Aliases(work), replaced)
	if err := e.runHooks(ctx, "PUT", schema, replaced); err != nil {
		return replaced, err
	}
	return replaced, nil
}

// records an accepted mutation in the submission journal, when journaling is
// on (journal trouble is logged, never fatal: the portal write already
// happened)
func (e *Engine) journalSubmission(method, profileName string, aliases []string, record map[string]any) {
	if !e.useJournal {
		return
	}
	var primaryAlias string
	if len(aliases) > 0 {
		primaryAlias = aliases[0]
	}
	err := journal.RecordSubmission(journal.Record{
		Id:       uuid.New(),
		Time:     time.Now(),
		Profile:  profileName,
		Method:   method,
		Alias:    primaryAlias,
		PortalId: recordIdentifier(record, ""),
	})
	if err != nil {
		e.logger.Errorf("Couldn't journal a %s submission: %s", method, err)
	}
}

// picks the best identifier a portal response offers for a record
func recordIdentifier(record map[string]any, fallback string) string {
	if id, ok := record["@id"].(string); ok && id != "" {
		return id
	}
	if accession, ok := record["accession"].(string); ok && accession != "" {
		return accession
	}
	if id, ok := record["uuid"].(string); ok && id != "" {
		return id
	}
	return fallback
}

// shallow-copies a record so transforms never touch the caller's map
func clone(record map[string]any) map[string]any {
	copied := make(map[string]any, len(record))
	for key, value := range record {
		copied[key] = value
	}
	return copied
}
