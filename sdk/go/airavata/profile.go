// Copyright (C) The Apache Software Foundation.
//
// SPDX-License-Identifier: Apache-2.0

package airavata

import "time"

// GatewayResourceProfile carries gateway-wide defaults, including the
// fallback credential store token.
type GatewayResourceProfile struct {
	GatewayID            string `json:"gateway_id"`
	CredentialStoreToken string `json:"credential_store_token,omitempty"`
}

// ComputeResourcePreference is a gateway-level preference for one
// compute resource.
type ComputeResourcePreference struct {
	ComputeResourceID                    string                `json:"compute_resource_id"`
	OverridebyAiravata                   bool                  `json:"overrideby_airavata,omitempty"`
	LoginUserName                        string                `json:"login_user_name,omitempty"`
	PreferredJobSubmissionProtocol       JobSubmissionProtocol `json:"preferred_job_submission_protocol,omitempty"`
	PreferredDataMovementProtocol        DataMovementProtocol  `json:"preferred_data_movement_protocol,omitempty"`
	PreferredBatchQueue                  string                `json:"preferred_batch_queue,omitempty"`
	ScratchLocation                      string                `json:"scratch_location,omitempty"`
	AllocationProjectNumber              string                `json:"allocation_project_number,omitempty"`
	ResourceSpecificCredentialStoreToken string                `json:"resource_specific_credential_store_token,omitempty"`
}

// StoragePreference is a gateway-level preference for one storage
// resource.
type StoragePreference struct {
	StorageResourceID                    string `json:"storage_resource_id"`
	LoginUserName                        string `json:"login_user_name,omitempty"`
	FileSystemRootLocation               string `json:"file_system_root_location,omitempty"`
	ResourceSpecificCredentialStoreToken string `json:"resource_specific_credential_store_token,omitempty"`
}

// ComputeResourceReservation is a time-bounded reservation on a set of
// queues. It only applies while "now" falls within [Start, End).
type ComputeResourceReservation struct {
	ReservationID   string    `json:"reservation_id"`
	ReservationName string    `json:"reservation_name"`
	QueueNames      []string  `json:"queue_names,omitempty"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
}

// Active reports whether the reservation covers the given instant.
func (r ComputeResourceReservation) Active(now time.Time) bool {
	return !r.StartTime.IsZero() && r.StartTime.Before(r.EndTime) &&
		!now.Before(r.StartTime) && now.Before(r.EndTime)
}

// GroupComputeResourcePreference is a group-scoped preference for one
// compute resource, part of a GroupResourceProfile.
type GroupComputeResourcePreference struct {
	ComputeResourceID                    string                       `json:"compute_resource_id"`
	GroupResourceProfileID               string                       `json:"group_resource_profile_id"`
	LoginUserName                        string                       `json:"login_user_name,omitempty"`
	ScratchLocation                      string                       `json:"scratch_location,omitempty"`
	AllocationProjectNumber              string                       `json:"allocation_project_number,omitempty"`
	QualityOfService                     string                       `json:"quality_of_service,omitempty"`
	ResourceSpecificCredentialStoreToken string                       `json:"resource_specific_credential_store_token,omitempty"`
	Reservations                         []ComputeResourceReservation `json:"reservations,omitempty"`
}

// ActiveReservationForQueue returns the reservation covering now for
// the given queue, if any.
func (p *GroupComputeResourcePreference) ActiveReservationForQueue(queueName string, now time.Time) (ComputeResourceReservation, bool) {
	for _, r := range p.Reservations {
		if !r.Active(now) {
			continue
		}
		for _, q := range r.QueueNames {
			if q == queueName {
				return r, true
			}
		}
	}
	return ComputeResourceReservation{}, false
}

// GroupResourceProfile is a gateway-scoped bundle of compute-resource
// preferences and credentials shared by a user group.
type GroupResourceProfile struct {
	GroupResourceProfileID      string                           `json:"group_resource_profile_id"`
	GatewayID                   string                           `json:"gateway_id"`
	GroupResourceProfileName    string                           `json:"group_resource_profile_name,omitempty"`
	DefaultCredentialStoreToken string                           `json:"default_credential_store_token,omitempty"`
	ComputePreferences          []GroupComputeResourcePreference `json:"compute_preferences,omitempty"`
}

// ComputePreference returns the preference for the given compute
// resource, if present.
func (g *GroupResourceProfile) ComputePreference(computeResourceID string) (GroupComputeResourcePreference, bool) {
	for _, p := range g.ComputePreferences {
		if p.ComputeResourceID == computeResourceID {
			return p, true
		}
	}
	return GroupComputeResourcePreference{}, false
}

// UserResourceProfile carries per-user defaults within a gateway.
type UserResourceProfile struct {
	UserName             string `json:"user_name"`
	GatewayID            string `json:"gateway_id"`
	CredentialStoreToken string `json:"credential_store_token,omitempty"`
}

// UserComputeResourcePreference is a per-user preference for one
// compute resource. It outranks process overrides and gateway/group
// defaults when the process opted in to user preferences.
type UserComputeResourcePreference struct {
	ComputeResourceID                    string    `json:"compute_resource_id"`
	LoginUserName                        string    `json:"login_user_name,omitempty"`
	PreferredBatchQueue                  string    `json:"preferred_batch_queue,omitempty"`
	ScratchLocation                      string    `json:"scratch_location,omitempty"`
	AllocationProjectNumber              string    `json:"allocation_project_number,omitempty"`
	QualityOfService                     string    `json:"quality_of_service,omitempty"`
	Reservation                          string    `json:"reservation,omitempty"`
	ReservationStartTime                 time.Time `json:"reservation_start_time,omitempty"`
	ReservationEndTime                   time.Time `json:"reservation_end_time,omitempty"`
	ResourceSpecificCredentialStoreToken string    `json:"resource_specific_credential_store_token,omitempty"`
}

// UserStoragePreference is a per-user preference for one storage
// resource.
type UserStoragePreference struct {
	StorageResourceID                    string `json:"storage_resource_id"`
	LoginUserName                        string `json:"login_user_name,omitempty"`
	FileSystemRootLocation               string `json:"file_system_root_location,omitempty"`
	ResourceSpecificCredentialStoreToken string `json:"resource_specific_credential_store_token,omitempty"`
}

// GatewayGroups records the access-control groups bootstrapped for a
// gateway. Used by the one-time migration tool only.
type GatewayGroups struct {
	GatewayID                  string `json:"gateway_id"`
	AdminsGroupID              string `json:"admins_group_id,omitempty"`
	ReadOnlyAdminsGroupID      string `json:"read_only_admins_group_id,omitempty"`
	DefaultGatewayUsersGroupID string `json:"default_gateway_users_group_id,omitempty"`
}
