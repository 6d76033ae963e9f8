// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package airavata

// JobSubmissionProtocol selects how jobs reach a compute resource.
type JobSubmissionProtocol string

const (
	JobSubmissionProtocolLocal   JobSubmissionProtocol = "LOCAL"
	JobSubmissionProtocolSSH     JobSubmissionProtocol = "SSH"
	JobSubmissionProtocolSSHFork JobSubmissionProtocol = "SSH_FORK"
	JobSubmissionProtocolCloud   JobSubmissionProtocol = "CLOUD"
)

// DataMovementProtocol selects how files reach a storage or compute
// resource.
type DataMovementProtocol string

const (
	DataMovementProtocolLocal   DataMovementProtocol = "LOCAL"
	DataMovementProtocolSCP     DataMovementProtocol = "SCP"
	DataMovementProtocolGridFTP DataMovementProtocol = "GridFTP"
)

// JobSubmissionInterface is one way of submitting jobs to a compute
// resource. Lower PriorityOrder is preferred.
type JobSubmissionInterface struct {
	JobSubmissionInterfaceID string                `json:"job_submission_interface_id"`
	JobSubmissionProtocol    JobSubmissionProtocol `json:"job_submission_protocol"`
	PriorityOrder            int                   `json:"priority_order"`
}

// DataMovementInterface is one way of moving data to or from a
// resource. Lower PriorityOrder is preferred.
type DataMovementInterface struct {
	DataMovementInterfaceID string               `json:"data_movement_interface_id"`
	DataMovementProtocol    DataMovementProtocol `json:"data_movement_protocol"`
	PriorityOrder           int                  `json:"priority_order"`
}

// BatchQueue describes one queue of a batch scheduler.
type BatchQueue struct {
	QueueName           string `json:"queue_name"`
	IsDefaultQueue      bool   `json:"is_default_queue,omitempty"`
	MaxRunTime          int    `json:"max_run_time,omitempty"`
	MaxNodes            int    `json:"max_nodes,omitempty"`
	MaxProcessors       int    `json:"max_processors,omitempty"`
	QueueSpecificMacros string `json:"queue_specific_macros,omitempty"`
}

// ComputeResourceDescription describes a remote HPC or cloud compute
// resource.
type ComputeResourceDescription struct {
	ComputeResourceID       string                   `json:"compute_resource_id"`
	HostName                string                   `json:"host_name"`
	Enabled                 bool                     `json:"enabled,omitempty"`
	BatchQueues             []BatchQueue             `json:"batch_queues,omitempty"`
	JobSubmissionInterfaces []JobSubmissionInterface `json:"job_submission_interfaces,omitempty"`
	DataMovementInterfaces  []DataMovementInterface  `json:"data_movement_interfaces,omitempty"`
}

// DefaultQueue returns the queue flagged as default, if any.
func (c *ComputeResourceDescription) DefaultQueue() (BatchQueue, bool) {
	for _, q := range c.BatchQueues {
		if q.IsDefaultQueue {
			return q, true
		}
	}
	return BatchQueue{}, false
}

// QueueByName returns the named queue, if present.
func (c *ComputeResourceDescription) QueueByName(name string) (BatchQueue, bool) {
	for _, q := range c.BatchQueues {
		if q.QueueName == name {
			return q, true
		}
	}
	return BatchQueue{}, false
}

// StorageResourceDescription describes a gateway storage resource.
type StorageResourceDescription struct {
	StorageResourceID      string                  `json:"storage_resource_id"`
	HostName               string                  `json:"host_name"`
	Enabled                bool                    `json:"enabled,omitempty"`
	DataMovementInterfaces []DataMovementInterface `json:"data_movement_interfaces,omitempty"`
}

// ApplicationInterfaceDescription describes an application as exposed
// to users: its name, modules, and declared inputs/outputs.
type ApplicationInterfaceDescription struct {
	ApplicationInterfaceID string             `json:"application_interface_id"`
	ApplicationName        string             `json:"application_name"`
	ApplicationModules     []string           `json:"application_modules,omitempty"`
	ApplicationInputs      []InputDataObject  `json:"application_inputs,omitempty"`
	ApplicationOutputs     []OutputDataObject `json:"application_outputs,omitempty"`
}

// ApplicationDeploymentDescription describes an installation of an
// application module on a specific compute resource.
type ApplicationDeploymentDescription struct {
	AppDeploymentID  string `json:"app_deployment_id"`
	AppModuleID      string `json:"app_module_id"`
	ComputeHostID    string `json:"compute_host_id"`
	ExecutablePath   string `json:"executable_path,omitempty"`
	DefaultQueueName string `json:"default_queue_name,omitempty"`
}
