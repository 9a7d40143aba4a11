package gateway

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// LoginResponse is returned by the gateway on successful login.
type LoginResponse struct {
	Result   string   `json:"result"`
	Token    string   `json:"token"`
	Fullname string   `json:"fullname"`
	Groups   []string `json:"groups"`
	Clusters []string `json:"clusters,omitempty"`
}

// AnonymousResponse is returned by the gateway on anonymous access.
type AnonymousResponse struct {
	Result string `json:"result"`
	Token  string `json:"token"`
}

// ClusterPermissions are the capabilities of the current user on a cluster.
type ClusterPermissions struct {
	Roles   []string `json:"roles"`
	Actions []string `json:"actions"`
}

// ClusterResourcesStats counts cluster resources.
type ClusterResourcesStats struct {
	Nodes uint `json:"nodes"`
	Cores uint `json:"cores"`
}

// ClusterJobsStats counts cluster jobs.
type ClusterJobsStats struct {
	Running uint `json:"running"`
	Total   uint `json:"total"`
}

// ClusterStats summarizes a cluster.
type ClusterStats struct {
	Resources ClusterResourcesStats `json:"resources"`
	Jobs      ClusterJobsStats      `json:"jobs"`
}

// ClusterDescription describes a cluster accessible to the current user.
type ClusterDescription struct {
	Name        string             `json:"name"`
	Permissions ClusterPermissions `json:"permissions"`
	Stats       *ClusterStats      `json:"stats,omitempty"`
}

// UserDescription is a user known by the gateway authentifier.
type UserDescription struct {
	Login    string `json:"login"`
	Fullname string `json:"fullname"`
}

// SlurmNumber is the optional number representation of slurmrestd. Plain
// JSON numbers are accepted as well.
type SlurmNumber struct {
	Set      bool  `json:"set"`
	Infinite bool  `json:"infinite"`
	Number   int64 `json:"number"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *SlurmNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = SlurmNumber{}

		return nil
	}

	if len(data) > 0 && data[0] != '{' {
		v, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return err
		}

		*n = SlurmNumber{Set: true, Number: v}

		return nil
	}

	type plain SlurmNumber

	return json.Unmarshal(data, (*plain)(n))
}

// String implements fmt.Stringer.
func (n SlurmNumber) String() string {
	switch {
	case n.Infinite:
		return "∞"
	case !n.Set:
		return "-"
	default:
		return strconv.FormatInt(n.Number, 10)
	}
}

// ClusterJob is a job in the cluster queue.
type ClusterJob struct {
	JobID     int64       `json:"job_id"`
	Name      string      `json:"name,omitempty"`
	UserName  string      `json:"user_name"`
	Account   string      `json:"account"`
	JobState  string      `json:"job_state"`
	Partition string      `json:"partition"`
	QOS       string      `json:"qos,omitempty"`
	Priority  SlurmNumber `json:"priority"`
	Nodes     string      `json:"nodes,omitempty"`
}

// ClusterJobDetail is the full description of a job.
type ClusterJobDetail struct {
	ClusterJob

	WorkingDirectory string      `json:"working_directory,omitempty"`
	SubmitTime       SlurmNumber `json:"submit_time"`
	StartTime        SlurmNumber `json:"start_time"`
	EndTime          SlurmNumber `json:"end_time"`
	ExitCode         SlurmNumber `json:"exit_code"`
	StateReason      string      `json:"state_reason,omitempty"`
}

// ClusterNode is a compute node. RealMemory is in bytes.
type ClusterNode struct {
	Name       string   `json:"name"`
	Cores      uint     `json:"cores"`
	CPUs       uint     `json:"cpus"`
	RealMemory uint64   `json:"real_memory"`
	State      []string `json:"state"`
	Partitions []string `json:"partitions"`
}

// PartitionNodes lists nodes of a partition.
type PartitionNodes struct {
	Configured string `json:"configured"`
	Total      uint   `json:"total"`
}

// ClusterPartition is a partition of the cluster.
type ClusterPartition struct {
	Name  string         `json:"name"`
	Nodes PartitionNodes `json:"nodes"`
}

// ClusterQos is a quality-of-service policy.
type ClusterQos struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Priority    SlurmNumber `json:"priority"`
	Flags       []string    `json:"flags"`
}

// ClusterReservation is an advanced reservation.
type ClusterReservation struct {
	Name      string      `json:"name"`
	NodeList  string      `json:"node_list"`
	Users     string      `json:"users"`
	Accounts  string      `json:"accounts"`
	StartTime SlurmNumber `json:"start_time"`
	EndTime   SlurmNumber `json:"end_time"`
	Flags     []string    `json:"flags"`
}

// ClusterAccount is an accounting association account.
type ClusterAccount struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Organization string `json:"organization"`
}
