package handlers

import (
	"context"
	"fmt"
)

type UploadFileRequest struct {
	Data     string `json:"data"`
	Prefix   string `json:"prefix"`
	FileName string `json:"fileName"`
}

func (r *UploadFileRequest) Validate() error {
	if r.Data == "" {
		return fmt.Errorf("file data is required")
	}
	return nil
}

// FileResponse carries the stored relative path of an asset, which is
// what record file fields hold.
type FileResponse struct {
	Path string `json:"path"`
}

// UploadFile stores a base64 data URL as a new asset.
func (s *Services) UploadFile(ctx context.Context, req *UploadFileRequest) (*FileResponse, error) {
	prefix := req.Prefix
	if prefix == "" {
		prefix = "file"
	}
	path, err := s.Assets.Save(req.Data, prefix, req.FileName)
	if err != nil {
		return nil, err
	}
	return &FileResponse{Path: path}, nil
}

type UploadChunkRequest struct {
	SessionID   string `json:"sessionId"`
	Data        string `json:"data"`
	FileName    string `json:"fileName"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
}

func (r *UploadChunkRequest) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if r.Data == "" {
		return fmt.Errorf("chunk data is required")
	}
	return nil
}

// ChunkResponse reports chunk upload progress. Path is set once the last
// missing chunk arrived and the file was assembled.
type ChunkResponse struct {
	Complete bool   `json:"complete"`
	Path     string `json:"path,omitempty"`
}

// UploadChunk stores one chunk of a chunked upload session.
func (s *Services) UploadChunk(ctx context.Context, req *UploadChunkRequest) (*ChunkResponse, error) {
	path, err := s.Uploads.AddChunk(ctx, req.SessionID, req.Data, req.FileName, req.ChunkIndex, req.TotalChunks)
	if err != nil {
		return nil, err
	}
	return &ChunkResponse{Complete: path != "", Path: path}, nil
}
