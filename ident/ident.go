// Package ident derives dataset and subject identifiers from recording paths.
//
// Paths follow a BIDS-like two-level layout: a directory segment starting with
// "ds" and digits names the dataset, and a nested "sub-<alphanumeric>"
// directory names the subject, e.g.
//
//	/data/ds002718/download/sub-007/eeg/sub-007_task-rest_eeg.edf
package ident

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrNoMatch is returned when a path does not follow the dataset/subject layout.
var ErrNoMatch = errors.New("path does not match dataset/subject layout")

var pattern = regexp.MustCompile(`.*/ds(?P<dataset>\d+).*?/sub-(?P<subject>[a-zA-Z0-9]+)/.*`)

var (
	datasetGroup = pattern.SubexpIndex("dataset")
	subjectGroup = pattern.SubexpIndex("subject")
)

// IDs identifies the source of a recording.
type IDs struct {
	DatasetID string
	SubjectID string
}

// String returns "dataset/subject".
func (i IDs) String() string {
	return i.DatasetID + "/" + i.SubjectID
}

// Extract returns the dataset and subject identifiers encoded in path.
// Separators and case are matched as given.
func Extract(path string) (IDs, error) {
	m := pattern.FindStringSubmatch(path)
	if m == nil {
		return IDs{}, fmt.Errorf("%w: %s", ErrNoMatch, path)
	}

	return IDs{
		DatasetID: "ds" + m[datasetGroup],
		SubjectID: "sub-" + m[subjectGroup],
	}, nil
}
