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

package journal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// This is the submission journal, which logs every mutation sent to the
// portal so a lab can trace what it submitted and when. The journal is a
// table of submission records (one per create or edit).

// a record storing all information relevant to a single submission
type Record struct {
	// UUID associated with the submission
	Id uuid.UUID `json:"id"`
	// time at which the portal accepted the submission
	Time time.Time `json:"time"`
	// profile of the submitted record (e.g. "experiment")
	Profile string `json:"profile"`
	// HTTP method the submission used ("POST", "PATCH", or "PUT")
	Method string `json:"method"`
	// primary alias of the submitted record, when it has one
	Alias string `json:"alias"`
	// identifier the portal assigned to the record (its @id)
	PortalId string `json:"portal_id"`
}

// opens the submission journal at the given path, creating it if necessary
// (an empty path leaves the journal closed, and recording becomes an error)
func Init(dbPath string) error {
	if dbPath == "" || IsOpen() {
		return nil
	}
	conn, err := sqlite.OpenConn(dbPath, sqlite.OpenReadWrite|sqlite.OpenCreate)
	if err != nil {
		return &CantOpenError{Message: err.Error()}
	}
	if err := createSchema(conn); err != nil {
		conn.Close()
		return &CantOpenError{Message: err.Error()}
	}
	openChannels()
	go journalProcess(conn)
	return nil
}

// saves and closes the submission journal (if it's been opened)
func Finalize() error {
	if IsOpen() {
		channels_.Input.Shutdown <- struct{}{}
		err := <-channels_.Output.Error
		closeChannels()
		return err
	}
	return nil
}

// returns true if the journal is open for writing, false if not
func IsOpen() bool {
	if channels_.Open { // has Init() been called?
		channels_.Input.CheckIfOpen <- struct{}{}
		select {
		case isOpen := <-channels_.Output.IsOpen:
			return isOpen
		case <-time.After(1 * time.Second): // after a second, we assume the goroutine has crashed
			closeChannels()
			return false
		}
	}
	return false
}

// records a submission accepted by the portal
func RecordSubmission(record Record) error {
	switch record.Method {
	case "POST", "PATCH", "PUT":
		// pass-through (see below)
	default:
		return &NewRecordError{
			Id:      record.Id,
			Message: fmt.Sprintf("Invalid method: %s", record.Method),
		}
	}

	if !IsOpen() {
		return &NotOpenError{}
	}

	channels_.Input.CreateRecord <- record
	return <-channels_.Output.Error
}

// retrieves records for submissions accepted within the time range with the
// given (inclusive) bounds
func Submissions(start, stop time.Time) ([]Record, error) {
	if !IsOpen() {
		return nil, &NotOpenError{}
	}
	channels_.Input.FetchRecords <- TimeRange{Start: start, Stop: stop}
	select {
	case records := <-channels_.Output.Records:
		return records, nil
	case err := <-channels_.Output.Error:
		return nil, err
	}
}

//-----------
// Internals
//-----------

// The journal gets its own goroutine so database trouble can't corrupt an
// in-flight submission. Here we define "input" channels (caller -> goroutine)
// and "output" channels (goroutine -> caller) for passing data back and forth

type TimeRange struct {
	Start, Stop time.Time
}

var channels_ struct {
	Open  bool // true if channels are open, false if not
	Input struct {
		CreateRecord chan Record    // for creating new records
		CheckIfOpen  chan struct{}  // for checking to see whether the database is open
		FetchRecords chan TimeRange // for fetching records within a time range
		Shutdown     chan struct{}  // for shutting down the database
	}

	Output struct {
		Records chan []Record // for returning records
		Error   chan error    // for returning errors
		IsOpen  chan bool     // for answering queries about whether the database is open
	}
}

func journalProcess(conn *sqlite.Conn) {
	running := true
	for running {
		select {

		case <-channels_.Input.CheckIfOpen:
			channels_.Output.IsOpen <- true // always true if this goroutine is running!

		case record := <-channels_.Input.CreateRecord:
			channels_.Output.Error <- createRecord(conn, record)

		case timeRange := <-channels_.Input.FetchRecords:
			records, err := fetchRecords(conn, timeRange.Start, timeRange.Stop)
			if err != nil {
				channels_.Output.Error <- err
			} else {
				channels_.Output.Records <- records
			}

		case <-channels_.Input.Shutdown:
			err := conn.Close()
			if err != nil {
				channels_.Output.Error <- &CantCloseError{Message: err.Error()}
			} else {
				channels_.Output.Error <- nil
			}
			running = false
		}
	}
}

func openChannels() {
	channels_.Open = true
	channels_.Input.CreateRecord = make(chan Record)
	channels_.Input.CheckIfOpen = make(chan struct{})
	channels_.Input.FetchRecords = make(chan TimeRange)
	channels_.Input.Shutdown = make(chan struct{})
	channels_.Output.Records = make(chan []Record)
	channels_.Output.Error = make(chan error)
	channels_.Output.IsOpen = make(chan bool)
}

func closeChannels() {
	channels_.Open = false
	close(channels_.Input.CreateRecord)
	close(channels_.Input.CheckIfOpen)
	close(channels_.Input.FetchRecords)
	close(channels_.Input.Shutdown)
	close(channels_.Output.Records)
	close(channels_.Output.Error)
	close(channels_.Output.IsOpen)
}

func createSchema(conn *sqlite.Conn) error {
	return sqlitex.ExecuteScript(conn, `
CREATE TABLE IF NOT EXISTS submissions (
  id TEXT PRIMARY KEY,
  time TEXT NOT NULL,
  profile TEXT NOT NULL,
  method TEXT NOT NULL,
  alias TEXT,
  portal_id TEXT
);
CREATE INDEX IF NOT EXISTS submissions_by_time ON submissions(time);
`, nil)
}

func createRecord(conn *sqlite.Conn, record Record) error {
	err := sqlitex.Execute(conn,
		`INSERT INTO submissions (id, time, profile, method, alias, portal_id)
		 VALUES (?, ?, ?, ?, ?, ?);`,
		&sqlitex.ExecOptions{
			Args: []any{
				record.Id.String(),
				record.Time.UTC().Format(time.RFC3339),
				record.Profile,
				record.Method,
				record.Alias,
				record.PortalId,
			},
		})
	if err != nil {
		return &NewRecordError{Id: record.Id, Message: err.Error()}
	}
	return nil
}

func fetchRecords(conn *sqlite.Conn, start, stop time.Time) ([]Record, error) {
	records := make([]Record, 0)
	err := sqlitex.Execute(conn,
		`SELECT id, time, profile, method, alias, portal_id FROM submissions
		 WHERE time >= ? AND time <= ? ORDER BY time, rowid;`,
		&sqlitex.ExecOptions{
			Args: []any{
				start.UTC().Format(time.RFC3339),
				stop.UTC().Format(time.RFC3339),
			},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				id, err := uuid.Parse(stmt.ColumnText(0))
				if err != nil {
					return &InvalidRecordError{Message: err.Error()}
				}
				acceptedAt, err := time.Parse(time.RFC3339, stmt.ColumnText(1))
				if err != nil {
					return &InvalidRecordError{Id: id, Message: err.Error()}
				}
				records = append(records, Record{
					Id:       id,
					Time:     acceptedAt,
					Profile:  stmt.ColumnText(2),
					Method:   stmt.ColumnText(3),
					Alias:    stmt.ColumnText(4),
					PortalId: stmt.ColumnText(5),
				})
				return nil
			},
		})
	return records, err
}
