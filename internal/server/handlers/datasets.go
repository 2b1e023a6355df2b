package handlers

import (
	"context"
	"fmt"

	"github.com/datadesk/datadesk/internal/models"
)

// DatasetList is the response of the dataset listing endpoint.
type DatasetList struct {
	Datasets []*models.Dataset `json:"datasets"`
}

type ListDatasetsRequest struct{}

func (r *ListDatasetsRequest) Validate() error { return nil }

// ListDatasets returns all dataset definitions.
func (s *Services) ListDatasets(ctx context.Context, req *ListDatasetsRequest) (*DatasetList, error) {
	datasets, err := s.Datasets.List(ctx)
	if err != nil {
		return nil, err
	}
	return &DatasetList{Datasets: datasets}, nil
}

type GetDatasetRequest struct {
	ID string `path:"id"`
}

func (r *GetDatasetRequest) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("dataset id is required")
	}
	return nil
}

// GetDataset returns a single dataset definition.
func (s *Services) GetDataset(ctx context.Context, req *GetDatasetRequest) (*models.Dataset, error) {
	return s.Datasets.Get(ctx, req.ID)
}

type CreateDatasetRequest struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Type        string                   `json:"type"`
	Fields      []models.FieldDefinition `json:"fields"`
}

func (r *CreateDatasetRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("dataset name is required")
	}
	return nil
}

// CreateDataset registers a new dataset.
func (s *Services) CreateDataset(ctx context.Context, req *CreateDatasetRequest) (*models.Dataset, error) {
	return s.Datasets.Create(ctx, req.Name, req.Description, req.Type, req.Fields)
}

type UpdateDatasetRequest struct {
	ID          string                   `path:"id"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Fields      []models.FieldDefinition `json:"fields"`
}

func (r *UpdateDatasetRequest) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("dataset id is required")
	}
	return nil
}

// UpdateDataset replaces a dataset's name, description and schema.
func (s *Services) UpdateDataset(ctx context.Context, req *UpdateDatasetRequest) (*models.Dataset, error) {
	return s.Datasets.Update(ctx, req.ID, req.Name, req.Description, req.Fields)
}

type DeleteDatasetRequest struct {
	ID string `path:"id"`
}

func (r *DeleteDatasetRequest) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("dataset id is required")
	}
	return nil
}

// DeletedResponse acknowledges a successful delete.
type DeletedResponse struct {
	Deleted bool `json:"deleted"`
}

// DeleteDataset removes a dataset, its records and its record table.
func (s *Services) DeleteDataset(ctx context.Context, req *DeleteDatasetRequest) (*DeletedResponse, error) {
	if err := s.Datasets.Delete(ctx, req.ID); err != nil {
		return nil, err
	}
	return &DeletedResponse{Deleted: true}, nil
}
