// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package airavata

import "strings"

// DataType classifies input/output data objects.
type DataType string

const (
	DataTypeString        DataType = "STRING"
	DataTypeInteger       DataType = "INTEGER"
	DataTypeFloat         DataType = "FLOAT"
	DataTypeURI           DataType = "URI"
	DataTypeURICollection DataType = "URI_COLLECTION"
	DataTypeStdout        DataType = "STDOUT"
	DataTypeStderr        DataType = "STDERR"
)

// DataProductURIScheme prefixes registry-managed data product URIs in
// experiment inputs. Such values must be resolved to concrete replica
// file paths before a process can stage them.
const DataProductURIScheme = "airavata-dp://"

// InputDataObject is one declared or user-supplied input.
type InputDataObject struct {
	Name                string   `json:"name"`
	Value               string   `json:"value,omitempty"`
	Type                DataType `json:"type"`
	ApplicationArgument string   `json:"application_argument,omitempty"`
	StorageResourceID   string   `json:"storage_resource_id,omitempty"`
	InputOrder          int      `json:"input_order,omitempty"`
}

// IsDataProductURI reports whether the value references one or more
// registry-managed data products.
func (i InputDataObject) IsDataProductURI() bool {
	switch i.Type {
	case DataTypeURI:
		return strings.HasPrefix(i.Value, DataProductURIScheme)
	case DataTypeURICollection:
		return strings.Contains(i.Value, DataProductURIScheme)
	}
	return false
}

// OutputDataObject is one declared or produced output.
type OutputDataObject struct {
	Name                string   `json:"name"`
	Value               string   `json:"value,omitempty"`
	Type                DataType `json:"type"`
	ApplicationArgument string   `json:"application_argument,omitempty"`
	IsRequired          bool     `json:"is_required,omitempty"`
	MetaData            string   `json:"metadata,omitempty"`
}

// ReplicaLocationCategory classifies where a data replica lives.
type ReplicaLocationCategory string

const (
	ReplicaLocationGatewayDataStore ReplicaLocationCategory = "GATEWAY_DATA_STORE"
	ReplicaLocationComputeResource  ReplicaLocationCategory = "COMPUTE_RESOURCE"
)

// ReplicaPersistentType classifies the lifetime of a replica.
type ReplicaPersistentType string

const (
	ReplicaPersistentTypeTransient  ReplicaPersistentType = "TRANSIENT"
	ReplicaPersistentTypePersistent ReplicaPersistentType = "PERSISTENT"
)

// DataReplicaLocation is one physical copy of a data product.
type DataReplicaLocation struct {
	ReplicaName             string                  `json:"replica_name,omitempty"`
	StorageResourceID       string                  `json:"storage_resource_id,omitempty"`
	FilePath                string                  `json:"file_path"`
	ReplicaLocationCategory ReplicaLocationCategory `json:"replica_location_category"`
	ReplicaPersistentType   ReplicaPersistentType   `json:"replica_persistent_type,omitempty"`
}

// DataProduct is a registry-managed reference to a logical file with
// one or more replicas.
type DataProduct struct {
	ProductURI       string                `json:"product_uri"`
	GatewayID        string                `json:"gateway_id"`
	OwnerName        string                `json:"owner_name,omitempty"`
	ProductName      string                `json:"product_name,omitempty"`
	ProductMetadata  map[string]string     `json:"product_metadata,omitempty"`
	ReplicaLocations []DataReplicaLocation `json:"replica_locations,omitempty"`
}

// GatewayDataStoreReplica returns the first replica located in the
// gateway data store, if any.
func (d *DataProduct) GatewayDataStoreReplica() (DataReplicaLocation, bool) {
	for _, rl := range d.ReplicaLocations {
		if rl.ReplicaLocationCategory == ReplicaLocationGatewayDataStore {
			return rl, true
		}
	}
	return DataReplicaLocation{}, false
}
