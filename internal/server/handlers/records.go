package handlers

import (
	"context"
	"fmt"

	"github.com/datadesk/datadesk/internal/models"
)

// RecordList is the response of the record listing endpoints. Records are
// flattened maps: field data plus id, datasetId, createdAt, lastModified.
type RecordList struct {
	Records []map[string]any `json:"records"`
}

// RecordResponse wraps a single flattened record.
type RecordResponse struct {
	Record map[string]any `json:"record"`
}

type ListRecordsRequest struct {
	DatasetID string `path:"id"`
}

func (r *ListRecordsRequest) Validate() error {
	if r.DatasetID == "" {
		return fmt.Errorf("dataset id is required")
	}
	return nil
}

// ListRecords returns all records of a dataset.
func (s *Services) ListRecords(ctx context.Context, req *ListRecordsRequest) (*RecordList, error) {
	records, err := s.Records.List(ctx, req.DatasetID)
	if err != nil {
		return nil, err
	}
	return &RecordList{Records: records}, nil
}

// ListResolvedRecords returns all records of a dataset with relation
// fields resolved one level deep under "<key>_data".
func (s *Services) ListResolvedRecords(ctx context.Context, req *ListRecordsRequest) (*RecordList, error) {
	records, err := s.Records.ListWithRelations(ctx, req.DatasetID)
	if err != nil {
		return nil, err
	}
	return &RecordList{Records: records}, nil
}

type AddRecordRequest struct {
	DatasetID string         `path:"id"`
	Fields    map[string]any `json:"fields"`
}

func (r *AddRecordRequest) Validate() error {
	if r.DatasetID == "" {
		return fmt.Errorf("dataset id is required")
	}
	if r.Fields == nil {
		return fmt.Errorf("fields are required")
	}
	return nil
}

// AddRecord creates a new record in a dataset.
func (s *Services) AddRecord(ctx context.Context, req *AddRecordRequest) (*RecordResponse, error) {
	record, err := s.Records.Add(ctx, req.DatasetID, req.Fields)
	if err != nil {
		return nil, err
	}
	return &RecordResponse{Record: record}, nil
}

type GetRecordRequest struct {
	ID string `path:"id"`
}

func (r *GetRecordRequest) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	return nil
}

// GetRecord returns a single record by id.
func (s *Services) GetRecord(ctx context.Context, req *GetRecordRequest) (*RecordResponse, error) {
	record, err := s.Records.Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &RecordResponse{Record: record}, nil
}

// GetResolvedRecord returns a single record with relations resolved.
func (s *Services) GetResolvedRecord(ctx context.Context, req *GetRecordRequest) (*RecordResponse, error) {
	record, err := s.Records.GetWithRelations(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &RecordResponse{Record: record}, nil
}

type UpdateRecordRequest struct {
	ID     string         `path:"id"`
	Fields map[string]any `json:"fields"`
}

func (r *UpdateRecordRequest) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if r.Fields == nil {
		return fmt.Errorf("fields are required")
	}
	return nil
}

// UpdateRecord replaces a record's field data.
func (s *Services) UpdateRecord(ctx context.Context, req *UpdateRecordRequest) (*RecordResponse, error) {
	record, err := s.Records.Update(ctx, req.ID, req.Fields)
	if err != nil {
		return nil, err
	}
	return &RecordResponse{Record: record}, nil
}

type DeleteRecordRequest struct {
	ID string `path:"id"`
}

func (r *DeleteRecordRequest) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	return nil
}

// DeleteRecord removes a record, cascading onto referencing records where
// their relation fields are configured to.
func (s *Services) DeleteRecord(ctx context.Context, req *DeleteRecordRequest) (*DeletedResponse, error) {
	if err := s.Records.Delete(ctx, req.ID); err != nil {
		return nil, err
	}
	return &DeletedResponse{Deleted: true}, nil
}

type ImportRecordsRequest struct {
	DatasetID string           `path:"id"`
	Records   []map[string]any `json:"records"`
}

func (r *ImportRecordsRequest) Validate() error {
	if r.DatasetID == "" {
		return fmt.Errorf("dataset id is required")
	}
	if len(r.Records) == 0 {
		return fmt.Errorf("records are required")
	}
	return nil
}

// ImportResponse reports how many rows of an import were persisted.
type ImportResponse struct {
	Imported int `json:"imported"`
	Total    int `json:"total"`
}

// ImportRecords bulk-inserts rows into a dataset. Invalid rows are
// skipped; the response carries the persisted count.
func (s *Services) ImportRecords(ctx context.Context, req *ImportRecordsRequest) (*ImportResponse, error) {
	count, err := s.Records.Import(ctx, req.DatasetID, req.Records)
	if err != nil {
		return nil, err
	}
	return &ImportResponse{Imported: count, Total: len(req.Records)}, nil
}

type CheckDuplicatesRequest struct {
	DatasetID string           `path:"id"`
	Records   []map[string]any `json:"records"`
}

func (r *CheckDuplicatesRequest) Validate() error {
	if r.DatasetID == "" {
		return fmt.Errorf("dataset id is required")
	}
	return nil
}

// DuplicatesResponse lists likely duplicates found for import rows.
type DuplicatesResponse struct {
	Matches []models.DuplicateMatch `json:"matches"`
}

// CheckDuplicates compares import rows against existing records and
// reports likely duplicates without persisting anything.
func (s *Services) CheckDuplicates(ctx context.Context, req *CheckDuplicatesRequest) (*DuplicatesResponse, error) {
	matches, err := s.Records.CheckForDuplicates(ctx, req.DatasetID, req.Records)
	if err != nil {
		return nil, err
	}
	return &DuplicatesResponse{Matches: matches}, nil
}
