package mockgateway

import (
	"fmt"

	"github.com/slurm-web/console/pkg/gateway"
)

// Actions granted by gateway roles.
const (
	ActionViewStats        = "view-stats"
	ActionViewJobs         = "view-jobs"
	ActionViewNodes        = "view-nodes"
	ActionViewPartitions   = "view-partitions"
	ActionViewQos          = "view-qos"
	ActionViewReservations = "view-reservations"
	ActionViewAccounts     = "view-accounts"
)

var roleActions = map[string][]string{
	"user": {
		ActionViewStats, ActionViewJobs, ActionViewNodes,
		ActionViewPartitions, ActionViewQos,
	},
	"admin": {
		ActionViewStats, ActionViewJobs, ActionViewNodes, ActionViewPartitions,
		ActionViewQos, ActionViewReservations, ActionViewAccounts,
	},
}

// User is an account of the mock gateway.
type User struct {
	Login    string
	Fullname string
	Password string
	Groups   []string
	// Roles per cluster name
	Roles map[string][]string
}

// Cluster is the data served by an agent of the mock gateway.
type Cluster struct {
	Name         string
	Jobs         []gateway.ClusterJobDetail
	Nodes        []gateway.ClusterNode
	Partitions   []gateway.ClusterPartition
	Qos          []gateway.ClusterQos
	Reservations []gateway.ClusterReservation
	Accounts     []gateway.ClusterAccount
}

// Stats summarizes cluster.
func (c *Cluster) Stats() gateway.ClusterStats {
	var stats gateway.ClusterStats

	for _, node := range c.Nodes {
		stats.Resources.Nodes++
		stats.Resources.Cores += node.Cores
	}

	for _, job := range c.Jobs {
		stats.Jobs.Total++

		if job.JobState == "RUNNING" {
			stats.Jobs.Running++
		}
	}

	return stats
}

// DefaultUsers returns the users of the mock gateway. alice administers
// foo and uses bar, bob uses foo only.
func DefaultUsers() []User {
	return []User{
		{
			Login:    "alice",
			Fullname: "Alice Doe",
			Password: "alice",
			Groups:   []string{"scientists", "admins"},
			Roles:    map[string][]string{"foo": {"admin"}, "bar": {"user"}},
		},
		{
			Login:    "bob",
			Fullname: "Bob Doe",
			Password: "bob",
			Groups:   []string{"scientists"},
			Roles:    map[string][]string{"foo": {"user"}},
		},
	}
}

// DefaultClusters returns the clusters of the mock gateway.
func DefaultClusters() []Cluster {
	return []Cluster{
		newCluster("foo", 8, 250),
		newCluster("bar", 2, 12),
	}
}

var (
	jobStates = []string{"RUNNING", "PENDING", "COMPLETED", "RUNNING", "FAILED"}
	users     = []string{"alice", "bob", "carol"}
	accounts  = []string{"physics", "biology", "chemistry"}
)

func newCluster(name string, numNodes, numJobs int) Cluster {
	c := Cluster{
		Name: name,
		Partitions: []gateway.ClusterPartition{
			{Name: "normal", Nodes: gateway.PartitionNodes{Configured: fmt.Sprintf("cn[1-%d]", numNodes), Total: uint(numNodes)}},
			{Name: "debug", Nodes: gateway.PartitionNodes{Configured: "cn1", Total: 1}},
		},
		Qos: []gateway.ClusterQos{
			{Name: "normal", Description: "Normal QOS", Priority: gateway.SlurmNumber{Set: true, Number: 10}, Flags: []string{}},
			{Name: "high", Description: "High priority QOS", Priority: gateway.SlurmNumber{Set: true, Number: 100}, Flags: []string{"DENY_LIMIT"}},
		},
		Reservations: []gateway.ClusterReservation{
			{
				Name:      "maintenance",
				NodeList:  "cn1",
				Users:     "root",
				StartTime: gateway.SlurmNumber{Set: true, Number: 1735689600},
				EndTime:   gateway.SlurmNumber{Set: true, Number: 1735776000},
				Flags:     []string{"MAINT"},
			},
		},
	}

	for _, account := range accounts {
		c.Accounts = append(c.Accounts, gateway.ClusterAccount{
			Name:         account,
			Description:  account + " department",
			Organization: "rackslab",
		})
	}

	for i := 1; i <= numNodes; i++ {
		c.Nodes = append(c.Nodes, gateway.ClusterNode{
			Name:       fmt.Sprintf("cn%d", i),
			Cores:      32,
			CPUs:       64,
			RealMemory: 256 << 30,
			State:      []string{"IDLE"},
			Partitions: []string{"normal"},
		})
	}

	c.Nodes[0].Partitions = append(c.Nodes[0].Partitions, "debug")

	for i := 1; i <= numJobs; i++ {
		state := jobStates[i%len(jobStates)]

		job := gateway.ClusterJobDetail{
			ClusterJob: gateway.ClusterJob{
				JobID:     int64(i),
				Name:      fmt.Sprintf("job-%d", i),
				UserName:  users[i%len(users)],
				Account:   accounts[i%len(accounts)],
				JobState:  state,
				Partition: "normal",
				QOS:       "normal",
				Priority:  gateway.SlurmNumber{Set: true, Number: int64(1000 - i%1000)},
			},
			WorkingDirectory: fmt.Sprintf("/home/%s", users[i%len(users)]),
			SubmitTime:       gateway.SlurmNumber{Set: true, Number: int64(1735689600 + i)},
			ExitCode:         gateway.SlurmNumber{Set: true},
		}

		if state == "RUNNING" {
			job.Nodes = c.Nodes[i%numNodes].Name
			job.StartTime = gateway.SlurmNumber{Set: true, Number: int64(1735689600 + i + 60)}
			job.EndTime = gateway.SlurmNumber{Infinite: true}
		} else {
			job.StateReason = "None"
		}

		c.Jobs = append(c.Jobs, job)
	}

	return c
}
