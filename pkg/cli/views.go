package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/slurm-web/console/pkg/dashboard"
	"github.com/slurm-web/console/pkg/stores"
)

// view renders dashboard actions results.
type view struct {
	app    *dashboard.App
	opts   options
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func (v *view) login(ctx context.Context) error {
	if v.opts.anonymous {
		if _, err := v.app.Anonymous(ctx); err != nil {
			return err
		}

		fmt.Fprintln(v.stdout, "Anonymous session opened")

		return nil
	}

	user, password, err := promptCredentials(v.stdin, v.stderr, v.opts.user)
	if err != nil {
		return err
	}

	resp, err := v.app.Login(ctx, user, password)
	if err != nil {
		return err
	}

	fmt.Fprintf(v.stdout, "Logged in as %s\n", resp.Fullname)

	return nil
}

func (v *view) clusters(ctx context.Context) error {
	clusters, err := v.app.Clusters(ctx)
	if err != nil {
		return err
	}

	t := newTable(v.stdout, "Clusters", table.Row{"Name", "Roles", "Nodes", "Cores", "Running", "Jobs"})

	for _, c := range clusters {
		row := table.Row{c.Name, joinOrDash(c.Permissions.Roles)}
		if c.Stats != nil {
			row = append(row, c.Stats.Resources.Nodes, c.Stats.Resources.Cores, c.Stats.Jobs.Running, c.Stats.Jobs.Total)
		} else {
			row = append(row, "-", "-", "-", "-")
		}

		t.AppendRow(row)
	}

	render(t, v.opts.format)

	return nil
}

func (v *view) users(ctx context.Context) error {
	users, err := v.app.Users(ctx)
	if err != nil {
		return err
	}

	t := newTable(v.stdout, "Users", table.Row{"Login", "Fullname"})
	for _, u := range users {
		t.AppendRow(table.Row{u.Login, u.Fullname})
	}

	render(t, v.opts.format)

	return nil
}

func (v *view) stats(ctx context.Context) error {
	stats, err := v.app.Stats(ctx, v.opts.cluster)
	if err != nil {
		return err
	}

	t := newTable(v.stdout, v.opts.cluster, table.Row{"Nodes", "Cores", "Running jobs", "Total jobs"})
	t.AppendRow(table.Row{stats.Resources.Nodes, stats.Resources.Cores, stats.Jobs.Running, stats.Jobs.Total})

	render(t, v.opts.format)

	return nil
}

// jobsSettings applies command options on the runtime jobs view settings.
func (v *view) jobsSettings() error {
	settings := v.app.Runtime.Jobs()

	if v.opts.query != "" {
		values, err := url.ParseQuery(v.opts.query)
		if err != nil {
			return fmt.Errorf("invalid jobs view query: %w", err)
		}

		shared, err := stores.ParseJobsViewSettings(values)
		if err != nil {
			return err
		}

		*settings = *shared

		return nil
	}

	for _, state := range splitFlags(v.opts.states) {
		settings.AddStateFilter(state)
	}

	for _, user := range splitFlags(v.opts.users) {
		settings.AddUserFilter(user)
	}

	for _, account := range splitFlags(v.opts.accounts) {
		settings.AddAccountFilter(account)
	}

	if err := settings.SetSort(v.opts.sort); err != nil {
		return err
	}

	settings.Page = max(v.opts.page, 1)

	return nil
}

func (v *view) jobs(ctx context.Context) error {
	if err := v.jobsSettings(); err != nil {
		return err
	}

	if v.opts.share {
		fmt.Fprintln(v.stdout, v.app.Runtime.Jobs().QueryParameters().Encode())

		return nil
	}

	page, err := v.app.JobsView(ctx, v.opts.cluster)
	if err != nil {
		return err
	}

	title := fmt.Sprintf("%s jobs (page %d/%d, %d/%d jobs)", v.opts.cluster, page.Page, page.Pages, page.Filtered, page.Total)
	t := newTable(v.stdout, title, table.Row{"ID", "Name", "User", "Account", "State", "Partition", "QOS", "Priority", "Nodes"})

	for _, job := range page.Jobs {
		t.AppendRow(table.Row{
			job.JobID, job.Name, job.UserName, job.Account, job.JobState,
			job.Partition, job.QOS, job.Priority.String(), job.Nodes,
		})
	}

	render(t, v.opts.format)

	return nil
}

func (v *view) job(ctx context.Context) error {
	job, err := v.app.Job(ctx, v.opts.cluster, v.opts.jobID)
	if err != nil {
		return err
	}

	t := newTable(v.stdout, fmt.Sprintf("Job %d", job.JobID), table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"Name", job.Name},
		{"User", job.UserName},
		{"Account", job.Account},
		{"State", job.JobState},
		{"Reason", job.StateReason},
		{"Partition", job.Partition},
		{"QOS", job.QOS},
		{"Priority", job.Priority.String()},
		{"Nodes", job.Nodes},
		{"Working directory", job.WorkingDirectory},
		{"Submit time", job.SubmitTime.String()},
		{"Start time", job.StartTime.String()},
		{"End time", job.EndTime.String()},
		{"Exit code", job.ExitCode.String()},
	})

	render(t, v.opts.format)

	return nil
}

func (v *view) nodes(ctx context.Context) error {
	nodes, err := v.app.Nodes(ctx, v.opts.cluster)
	if err != nil {
		return err
	}

	t := newTable(v.stdout, v.opts.cluster+" nodes", table.Row{"Name", "State", "Cores", "CPUs", "Memory", "Partitions"})
	for _, n := range nodes {
		t.AppendRow(table.Row{n.Name, joinOrDash(n.State), n.Cores, n.CPUs, memory(n.RealMemory), joinOrDash(n.Partitions)})
	}

	render(t, v.opts.format)

	return nil
}

func (v *view) node(ctx context.Context) error {
	n, err := v.app.Node(ctx, v.opts.cluster, v.opts.name)
	if err != nil {
		return err
	}

	t := newTable(v.stdout, "Node "+n.Name, table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"State", joinOrDash(n.State)},
		{"Cores", n.Cores},
		{"CPUs", n.CPUs},
		{"Memory", memory(n.RealMemory)},
		{"Partitions", joinOrDash(n.Partitions)},
	})

	render(t, v.opts.format)

	return nil
}

func (v *view) partitions(ctx context.Context) error {
	partitions, err := v.app.Partitions(ctx, v.opts.cluster)
	if err != nil {
		return err
	}

	t := newTable(v.stdout, v.opts.cluster+" partitions", table.Row{"Name", "Nodes", "Total"})
	for _, p := range partitions {
		t.AppendRow(table.Row{p.Name, p.Nodes.Configured, p.Nodes.Total})
	}

	render(t, v.opts.format)

	return nil
}

func (v *view) qos(ctx context.Context) error {
	qos, err := v.app.QOS(ctx, v.opts.cluster)
	if err != nil {
		return err
	}

	t := newTable(v.stdout, v.opts.cluster+" QOS", table.Row{"Name", "Description", "Priority", "Flags"})
	for _, q := range qos {
		t.AppendRow(table.Row{q.Name, q.Description, q.Priority.String(), joinOrDash(q.Flags)})
	}

	render(t, v.opts.format)

	return nil
}

func (v *view) reservations(ctx context.Context) error {
	reservations, err := v.app.Reservations(ctx, v.opts.cluster)
	if err != nil {
		return err
	}

	t := newTable(v.stdout, v.opts.cluster+" reservations", table.Row{"Name", "Nodes", "Users", "Accounts", "Start", "End", "Flags"})
	for _, r := range reservations {
		t.AppendRow(table.Row{
			r.Name, r.NodeList, r.Users, r.Accounts,
			r.StartTime.String(), r.EndTime.String(), joinOrDash(r.Flags),
		})
	}

	render(t, v.opts.format)

	return nil
}

func (v *view) accounts(ctx context.Context) error {
	accounts, err := v.app.Accounts(ctx, v.opts.cluster)
	if err != nil {
		return err
	}

	t := newTable(v.stdout, v.opts.cluster+" accounts", table.Row{"Name", "Description", "Organization"})
	for _, a := range accounts {
		t.AppendRow(table.Row{a.Name, a.Description, a.Organization})
	}

	render(t, v.opts.format)

	return nil
}
