// Package sqlite implements dataset.Sink over a SQLite database: one file
// per replication, rows buffered in memory and flushed in batched
// transactions, with an exit hook so nothing buffered is lost on early
// termination. The database runs in WAL mode with a busy timeout rather
// than hand-rolled retry loops.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"
)

type unweightedRow struct {
	datasetID, run, batch int
	simTime, value        float64
}

type timeWeightedRow struct {
	datasetID, run, batch   int
	fromTime, toTime, value float64
}

// Recorder writes dataset emissions to a SQLite file. It implements
// dataset.Sink.
type Recorder struct {
	*sql.DB

	dbName    string
	batchSize int

	unweighted   []unweightedRow
	timeWeighted []timeWeightedRow

	log *logrus.Entry
}

// New creates a Recorder writing to path (".sqlite3" is appended). An
// empty path picks a fresh xid-based name. The file must not already
// exist.
func New(path string) *Recorder {
	r := &Recorder{
		dbName:    path,
		batchSize: 100000,
		log:       logrus.WithField("component", "datasink.sqlite"),
	}
	r.init()

	atexit.Register(func() { r.Flush() })

	return r
}

func (r *Recorder) init() {
	if r.dbName == "" {
		r.dbName = "desim_" + xid.New().String()
	}

	filename := r.dbName + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		panic(fmt.Errorf("file %s already exists", filename))
	}

	dsn := filename + "?_journal_mode=WAL&_busy_timeout=60000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		panic(err)
	}
	r.DB = db

	r.createTables()
	r.log.WithField("file", filename).Info("database created for recording")
}

func (r *Recorder) createTables() {
	r.mustExecute(`CREATE TABLE elements (
		id TEXT PRIMARY KEY,
		class TEXT,
		type TEXT)`)
	r.mustExecute(`CREATE TABLE datasets (
		id INTEGER,
		run INTEGER,
		element_id TEXT,
		name TEXT,
		value_type TEXT,
		is_time_weighted INTEGER,
		time_unit TEXT,
		PRIMARY KEY (id, run))`)
	r.mustExecute(`CREATE TABLE unweighted_values (
		dataset_id INTEGER,
		run INTEGER,
		batch INTEGER,
		simtime REAL,
		value REAL)`)
	r.mustExecute(`CREATE TABLE timeweighted_values (
		dataset_id INTEGER,
		run INTEGER,
		batch INTEGER,
		from_time REAL,
		to_time REAL,
		value REAL)`)
	r.mustExecute(`CREATE TABLE runs (
		run INTEGER PRIMARY KEY,
		status TEXT)`)
}

func (r *Recorder) mustExecute(query string, args ...interface{}) sql.Result {
	res, err := r.Exec(query, args...)
	if err != nil {
		panic(fmt.Errorf("sqlite: %q: %w", query, err))
	}
	return res
}

// run is recorded on BeginRun so dataset rows can reference it; the sink
// contract passes it on every put as well.
func (r *Recorder) currentRunStatus(run int, status string) {
	r.mustExecute(`INSERT INTO runs (run, status) VALUES (?, ?)
		ON CONFLICT(run) DO UPDATE SET status = excluded.status`, run, status)
}

// OnElement implements dataset.Sink.
func (r *Recorder) OnElement(elementID, className, elementType string) {
	r.mustExecute(`INSERT OR IGNORE INTO elements (id, class, type) VALUES (?, ?, ?)`,
		elementID, className, elementType)
}

// OnDataset implements dataset.Sink.
func (r *Recorder) OnDataset(datasetID int, elementID, name, valueType string, timeWeighted bool, timeUnit string) {
	tw := 0
	if timeWeighted {
		tw = 1
	}
	r.mustExecute(`INSERT OR IGNORE INTO datasets
		(id, run, element_id, name, value_type, is_time_weighted, time_unit)
		VALUES (?, 0, ?, ?, ?, ?, ?)`,
		datasetID, elementID, name, valueType, tw, timeUnit)
}

// PutUnweighted implements dataset.Sink.
func (r *Recorder) PutUnweighted(datasetID, run, batch int, simTime, value float64) {
	r.unweighted = append(r.unweighted, unweightedRow{datasetID, run, batch, simTime, value})
	if len(r.unweighted) >= r.batchSize {
		r.Flush()
	}
}

// PutTimeWeighted implements dataset.Sink.
func (r *Recorder) PutTimeWeighted(datasetID, run, batch int, fromTime, toTime, value float64) {
	r.timeWeighted = append(r.timeWeighted,
		timeWeightedRow{datasetID, run, batch, fromTime, toTime, value})
	if len(r.timeWeighted) >= r.batchSize {
		r.Flush()
	}
}

// BeginRun implements dataset.Sink.
func (r *Recorder) BeginRun(run int) { r.currentRunStatus(run, "started") }

// BeginBatch implements dataset.Sink.
func (r *Recorder) BeginBatch(run, batch int) {}

// EndBatch implements dataset.Sink.
func (r *Recorder) EndBatch(run, batch int) { r.Flush() }

// EndRun implements dataset.Sink.
func (r *Recorder) EndRun(run int) {
	r.Flush()
	r.currentRunStatus(run, "complete")
}

// Flush writes all buffered rows in one transaction.
func (r *Recorder) Flush() {
	if len(r.unweighted) == 0 && len(r.timeWeighted) == 0 {
		return
	}

	r.mustExecute("BEGIN TRANSACTION")
	defer r.mustExecute("COMMIT TRANSACTION")

	if len(r.unweighted) > 0 {
		stmt, err := r.Prepare(`INSERT INTO unweighted_values
			(dataset_id, run, batch, simtime, value) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			panic(err)
		}
		for _, row := range r.unweighted {
			if _, err := stmt.Exec(row.datasetID, row.run, row.batch, row.simTime, row.value); err != nil {
				panic(err)
			}
		}
		stmt.Close()
		r.unweighted = r.unweighted[:0]
	}

	if len(r.timeWeighted) > 0 {
		stmt, err := r.Prepare(`INSERT INTO timeweighted_values
			(dataset_id, run, batch, from_time, to_time, value) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			panic(err)
		}
		for _, row := range r.timeWeighted {
			if _, err := stmt.Exec(row.datasetID, row.run, row.batch,
				row.fromTime, row.toTime, row.value); err != nil {
				panic(err)
			}
		}
		stmt.Close()
		r.timeWeighted = r.timeWeighted[:0]
	}
}
