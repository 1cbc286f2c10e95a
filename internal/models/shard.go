package models

import (
	"fmt"
	"strings"
	"time"
)

// ShardStatus is the lifecycle state of a shard. It serializes as its name.
type ShardStatus string

const (
	ShardStatusProvisioning ShardStatus = "Provisioning"
	ShardStatusActive       ShardStatus = "Active"
	ShardStatusStopped      ShardStatus = "Stopped"
	ShardStatusDraining     ShardStatus = "Draining"
	ShardStatusFailed       ShardStatus = "Failed"
)

// ShardStatuses lists every status in declaration order
var ShardStatuses = []ShardStatus{
	ShardStatusProvisioning,
	ShardStatusActive,
	ShardStatusStopped,
	ShardStatusDraining,
	ShardStatusFailed,
}

// ParseShardStatus resolves a status name case-insensitively
func ParseShardStatus(s string) (ShardStatus, error) {
	for _, status := range ShardStatuses {
		if strings.EqualFold(string(status), strings.TrimSpace(s)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown shard status: %q", s)
}

// Shard is a single stateful processing unit of one modality.
// ShardID is a case-insensitive key and never changes after creation.
type Shard struct {
	ShardID    string      `json:"ShardId"`
	Modality   string      `json:"Modality"`
	Status     ShardStatus `json:"Status"`
	Capacity   int         `json:"Capacity"`
	CreatedUtc time.Time   `json:"CreatedUtc"`
	UpdatedUtc time.Time   `json:"UpdatedUtc"`
}

// FleetOverview holds aggregate shard counts. Provisioning shards only count toward Total.
type FleetOverview struct {
	Total    int `json:"Total"`
	Active   int `json:"Active"`
	Stopped  int `json:"Stopped"`
	Draining int `json:"Draining"`
	Failed   int `json:"Failed"`
}

// PagedResult is one page of a filtered, ordered query
type PagedResult[T any] struct {
	Items      []T `json:"Items"`
	TotalCount int `json:"TotalCount"`
	Page       int `json:"Page"`
	PageSize   int `json:"PageSize"`
}
