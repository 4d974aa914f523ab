package jobs

import (
	"encoding/json"
	"math"

	"github.com/molequeue-io/molequeue/internal/filespec"
)

// ID is the MoleQueue ID space: a 64-bit unsigned integer, dense and
// monotonically increasing, assigned exactly once at job creation and
// never reused within a process lifetime (spec §3).
type ID uint64

// InvalidID and the reserved maximum value are both sentinels for
// "invalid" per spec §3; a JobManager never assigns either.
const (
	InvalidID ID = 0
	MaxID     ID = math.MaxUint64
)

// IsValid reports whether id could plausibly have been assigned by a
// JobManager.
func (id ID) IsValid() bool { return id != InvalidID && id != MaxID }

// Data holds all metadata for one job. JobManager is the sole owner of
// Data values; every other component holds an ID and resolves through the
// manager on each access (spec §3, §9).
type Data struct {
	Queue   string `json:"queue"`
	Program string `json:"program"`
	State   State  `json:"jobState"`

	Description string `json:"description"`

	InputFile            filespec.Spec   `json:"-"`
	AdditionalInputFiles []filespec.Spec `json:"-"`

	OutputDirectory       string `json:"outputDirectory"`
	LocalWorkingDirectory string `json:"localWorkingDirectory"`

	CleanRemoteFiles           bool `json:"cleanRemoteFiles"`
	RetrieveOutput             bool `json:"retrieveOutput"`
	CleanLocalWorkingDirectory bool `json:"cleanLocalWorkingDirectory"`

	HideFromGui       bool `json:"hideFromGui"`
	PopupOnStateChange bool `json:"popupOnStateChange"`

	NumberOfCores int `json:"numberOfCores"`
	MaxWallTime   int `json:"maxWallTime"`

	MoleQueueID ID `json:"moleQueueId"`
	QueueID     ID `json:"queueId"`

	Keywords map[string]string `json:"keywords"`
}

// NewData returns a Data value with the defaults spec §3 names:
// RetrieveOutput true, NumberOfCores 1, everything else zero.
func NewData() Data {
	return Data{
		RetrieveOutput: true,
		NumberOfCores:  1,
		Keywords:       make(map[string]string),
	}
}

// wireData mirrors the flat JSON job hash of spec §3/§6. Unknown fields in
// a decoded request are ignored by virtue of being absent from this
// struct; the server echoes only recognized fields by always re-encoding
// through this type.
type wireData struct {
	Queue                      string            `json:"queue"`
	Program                    string            `json:"program"`
	JobState                   State             `json:"jobState"`
	Description                string            `json:"description"`
	InputFile                  json.RawMessage   `json:"inputFile,omitempty"`
	AdditionalInputFiles       []json.RawMessage `json:"additionalInputFiles,omitempty"`
	OutputDirectory            string            `json:"outputDirectory"`
	LocalWorkingDirectory      string            `json:"localWorkingDirectory"`
	CleanRemoteFiles           bool              `json:"cleanRemoteFiles"`
	RetrieveOutput             bool              `json:"retrieveOutput"`
	CleanLocalWorkingDirectory bool              `json:"cleanLocalWorkingDirectory"`
	HideFromGui                bool              `json:"hideFromGui"`
	PopupOnStateChange         bool              `json:"popupOnStateChange"`
	NumberOfCores              int               `json:"numberOfCores"`
	MaxWallTime                int               `json:"maxWallTime"`
	MoleQueueID                uint64            `json:"moleQueueId"`
	QueueID                    uint64            `json:"queueId"`
	Keywords                   map[string]string `json:"keywords"`
}

// ToHash renders d as the flat JSON job hash used on the wire and in the
// per-job sidecar file (spec §6).
func (d Data) ToHash() ([]byte, error) {
	w := wireData{
		Queue: d.Queue, Program: d.Program, JobState: d.State,
		Description: d.Description, OutputDirectory: d.OutputDirectory,
		LocalWorkingDirectory:      d.LocalWorkingDirectory,
		CleanRemoteFiles:           d.CleanRemoteFiles,
		RetrieveOutput:             d.RetrieveOutput,
		CleanLocalWorkingDirectory: d.CleanLocalWorkingDirectory,
		HideFromGui:                d.HideFromGui,
		PopupOnStateChange:         d.PopupOnStateChange,
		NumberOfCores:              d.NumberOfCores,
		MaxWallTime:                d.MaxWallTime,
		MoleQueueID:                uint64(d.MoleQueueID),
		QueueID:                    uint64(d.QueueID),
		Keywords:                   d.Keywords,
	}
	if d.InputFile.IsValid() {
		raw, err := d.InputFile.ToJSON()
		if err != nil {
			return nil, err
		}
		w.InputFile = raw
	}
	for _, f := range d.AdditionalInputFiles {
		raw, err := f.ToJSON()
		if err != nil {
			return nil, err
		}
		w.AdditionalInputFiles = append(w.AdditionalInputFiles, raw)
	}
	return json.Marshal(w)
}

// FromHash parses a flat JSON job hash into a Data value. Per spec §4.3,
// moleQueueId present in the hash is ignored by callers that assign a
// fresh id (JobManager.NewJobFromHash); FromHash itself preserves whatever
// id was present so read-back (ReadSettings) can restore it verbatim.
func FromHash(raw []byte) (Data, error) {
	var w wireData
	if err := json.Unmarshal(raw, &w); err != nil {
		return Data{}, err
	}
	d := Data{
		Queue: w.Queue, Program: w.Program, State: w.JobState,
		Description: w.Description, OutputDirectory: w.OutputDirectory,
		LocalWorkingDirectory:      w.LocalWorkingDirectory,
		CleanRemoteFiles:           w.CleanRemoteFiles,
		RetrieveOutput:             w.RetrieveOutput,
		CleanLocalWorkingDirectory: w.CleanLocalWorkingDirectory,
		HideFromGui:                w.HideFromGui,
		PopupOnStateChange:         w.PopupOnStateChange,
		NumberOfCores:              w.NumberOfCores,
		MaxWallTime:                w.MaxWallTime,
		MoleQueueID:                ID(w.MoleQueueID),
		QueueID:                    ID(w.QueueID),
		Keywords:                   w.Keywords,
	}
	if d.Keywords == nil {
		d.Keywords = make(map[string]string)
	}
	if len(w.InputFile) > 0 {
		spec, err := filespec.FromJSON(w.InputFile)
		if err != nil {
			return Data{}, err
		}
		d.InputFile = spec
	}
	for _, raw := range w.AdditionalInputFiles {
		spec, err := filespec.FromJSON(raw)
		if err != nil {
			return Data{}, err
		}
		d.AdditionalInputFiles = append(d.AdditionalInputFiles, spec)
	}
	return d, nil
}
