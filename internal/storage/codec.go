package storage

import (
	"encoding/json"
	"errors"
	"sort"

	"mlvisuals/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion is stamped on every record before it is saved.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeLearningCurve(c model.LearningCurve) ([]byte, error) {
	return json.Marshal(c)
}

func DecodeLearningCurve(data []byte) (model.LearningCurve, error) {
	var curve model.LearningCurve
	if err := json.Unmarshal(data, &curve); err != nil {
		return model.LearningCurve{}, err
	}
	if err := checkVersion(curve.VersionedRecord); err != nil {
		return model.LearningCurve{}, err
	}
	return curve, nil
}

func EncodeBoundaryBatch(b model.BoundaryBatch) ([]byte, error) {
	return json.Marshal(b)
}

func DecodeBoundaryBatch(data []byte) (model.BoundaryBatch, error) {
	var batch model.BoundaryBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return model.BoundaryBatch{}, err
	}
	if err := checkVersion(batch.VersionedRecord); err != nil {
		return model.BoundaryBatch{}, err
	}
	return batch, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

func curveRecord(c model.LearningCurve) model.RunRecord {
	return model.RunRecord{ID: c.ID, Kind: model.RunKindLearningCurve, Complete: c.Complete, CreatedAtUTC: c.CreatedAtUTC}
}

func batchRecord(b model.BoundaryBatch) model.RunRecord {
	kind := b.Kind
	if kind == "" {
		kind = model.RunKindBiasVariance
	}
	return model.RunRecord{ID: b.ID, Kind: kind, Complete: b.Complete, CreatedAtUTC: b.CreatedAtUTC}
}

// sortRuns orders oldest first, ties broken by id.
func sortRuns(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC < runs[j].CreatedAtUTC
		}
		return runs[i].ID < runs[j].ID
	})
}
