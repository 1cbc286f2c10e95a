package models

import (
	"fmt"
	"strings"
)

// CreateShardRequest is the body of POST /api/sm/shards
type CreateShardRequest struct {
	ShardID  string `json:"ShardId"`
	Modality string `json:"Modality"`
	Capacity int    `json:"Capacity"`
}

// Validate checks required fields and trims surrounding whitespace
func (r *CreateShardRequest) Validate() error {
	r.ShardID = strings.TrimSpace(r.ShardID)
	r.Modality = strings.TrimSpace(r.Modality)

	if r.ShardID == "" {
		return fmt.Errorf("ShardId is required")
	}
	if r.Modality == "" {
		return fmt.Errorf("Modality is required")
	}
	if r.Capacity < 0 {
		return fmt.Errorf("Capacity cannot be negative")
	}
	return nil
}

// ListShardsQuery holds the query string of GET /api/sm/shards
type ListShardsQuery struct {
	Modality string `query:"modality"`
	Status   string `query:"status"`
	Page     int    `query:"page"`
	PageSize int    `query:"pageSize"`
}
