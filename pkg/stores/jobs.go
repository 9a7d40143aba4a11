package stores

import (
	"cmp"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/slurm-web/console/internal/common"
	"github.com/slurm-web/console/pkg/gateway"
)

// Sort keys of the jobs view.
const (
	SortID        = "id"
	SortUser      = "user"
	SortState     = "state"
	SortAccount   = "account"
	SortPartition = "partition"
)

// JobsPageSize is the number of jobs per page.
const JobsPageSize = 100

// Query parameters of a shared jobs view.
const (
	paramSort     = "sort"
	paramPage     = "page"
	paramStates   = "states"
	paramUsers    = "users"
	paramAccounts = "accounts"
)

var sortKeys = []string{SortID, SortUser, SortState, SortAccount, SortPartition}

// Errors of jobs view settings.
var (
	ErrInvalidSort = errors.New("invalid sort key")
	ErrInvalidPage = errors.New("invalid page")
)

// JobsViewFilters are the filter dimensions of the jobs view. Empty
// dimensions match every job.
type JobsViewFilters struct {
	States   []string
	Users    []string
	Accounts []string
}

// Empty returns true when no filter is set.
func (f JobsViewFilters) Empty() bool {
	return len(f.States) == 0 && len(f.Users) == 0 && len(f.Accounts) == 0
}

// JobsViewSettings holds sort, pagination and filters of the jobs view.
type JobsViewSettings struct {
	Sort    string
	Page    int
	Filters JobsViewFilters
}

// NewJobsViewSettings returns settings at their defaults.
func NewJobsViewSettings() *JobsViewSettings {
	return &JobsViewSettings{Sort: SortID, Page: 1}
}

// ParseJobsViewSettings returns settings decoded from query parameters
// produced by QueryParameters.
func ParseJobsViewSettings(values url.Values) (*JobsViewSettings, error) {
	s := NewJobsViewSettings()

	if sort := values.Get(paramSort); sort != "" {
		if err := s.SetSort(sort); err != nil {
			return nil, err
		}
	}

	for _, state := range common.SplitString(values.Get(paramStates), ",") {
		s.AddStateFilter(state)
	}

	for _, user := range common.SplitString(values.Get(paramUsers), ",") {
		s.AddUserFilter(user)
	}

	for _, account := range common.SplitString(values.Get(paramAccounts), ",") {
		s.AddAccountFilter(account)
	}

	// Page is decoded last as filters reset it
	if page := values.Get(paramPage); page != "" {
		p, err := strconv.Atoi(page)
		if err != nil || p < 1 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPage, page)
		}

		s.Page = p
	}

	return s, nil
}

// SetSort sets the sort key.
func (s *JobsViewSettings) SetSort(key string) error {
	if !slices.Contains(sortKeys, key) {
		return fmt.Errorf("%w: %s", ErrInvalidSort, key)
	}

	s.Sort = key

	return nil
}

// RestoreSortDefault resets the sort key.
func (s *JobsViewSettings) RestoreSortDefault() {
	s.Sort = SortID
}

// AddStateFilter adds state to the states filter. Filters reset the page.
func (s *JobsViewSettings) AddStateFilter(state string) {
	s.Filters.States = addFilter(s.Filters.States, state)
	s.Page = 1
}

// AddUserFilter adds user to the users filter.
func (s *JobsViewSettings) AddUserFilter(user string) {
	s.Filters.Users = addFilter(s.Filters.Users, user)
	s.Page = 1
}

// AddAccountFilter adds account to the accounts filter.
func (s *JobsViewSettings) AddAccountFilter(account string) {
	s.Filters.Accounts = addFilter(s.Filters.Accounts, account)
	s.Page = 1
}

// RemoveStateFilter removes state from the states filter.
func (s *JobsViewSettings) RemoveStateFilter(state string) {
	s.Filters.States = removeFilter(s.Filters.States, state)
	s.Page = 1
}

// RemoveUserFilter removes user from the users filter.
func (s *JobsViewSettings) RemoveUserFilter(user string) {
	s.Filters.Users = removeFilter(s.Filters.Users, user)
	s.Page = 1
}

// RemoveAccountFilter removes account from the accounts filter.
func (s *JobsViewSettings) RemoveAccountFilter(account string) {
	s.Filters.Accounts = removeFilter(s.Filters.Accounts, account)
	s.Page = 1
}

// ClearFilters removes all filters.
func (s *JobsViewSettings) ClearFilters() {
	s.Filters = JobsViewFilters{}
	s.Page = 1
}

// filter sets compare case-insensitively.
func addFilter(set []string, value string) []string {
	value = strings.TrimSpace(value)
	if value == "" || containsFold(set, value) {
		return set
	}

	return append(set, value)
}

func removeFilter(set []string, value string) []string {
	return slices.DeleteFunc(set, func(v string) bool {
		return strings.EqualFold(v, value)
	})
}

func containsFold(set []string, value string) bool {
	return slices.ContainsFunc(set, func(v string) bool {
		return strings.EqualFold(v, value)
	})
}

// MatchesFilters returns true when job satisfies every non-empty filter
// dimension.
func (s *JobsViewSettings) MatchesFilters(job gateway.ClusterJob) bool {
	if len(s.Filters.States) > 0 && !containsFold(s.Filters.States, job.JobState) {
		return false
	}

	if len(s.Filters.Users) > 0 && !containsFold(s.Filters.Users, job.UserName) {
		return false
	}

	if len(s.Filters.Accounts) > 0 && !containsFold(s.Filters.Accounts, job.Account) {
		return false
	}

	return true
}

// QueryParameters returns settings as query parameters, omitting fields at
// their default value.
func (s *JobsViewSettings) QueryParameters() url.Values {
	values := url.Values{}

	if s.Sort != "" && s.Sort != SortID {
		values.Set(paramSort, s.Sort)
	}

	if s.Page > 1 {
		values.Set(paramPage, strconv.Itoa(s.Page))
	}

	if len(s.Filters.States) > 0 {
		values.Set(paramStates, strings.Join(s.Filters.States, ","))
	}

	if len(s.Filters.Users) > 0 {
		values.Set(paramUsers, strings.Join(s.Filters.Users, ","))
	}

	if len(s.Filters.Accounts) > 0 {
		values.Set(paramAccounts, strings.Join(s.Filters.Accounts, ","))
	}

	return values
}

// JobsPage is a page of the filtered and sorted jobs list.
type JobsPage struct {
	Jobs     []gateway.ClusterJob
	Page     int
	Pages    int
	Total    int
	Filtered int
}

// Apply filters, sorts and paginates jobs. A page beyond the last one
// returns the last page.
func (s *JobsViewSettings) Apply(jobs []gateway.ClusterJob) JobsPage {
	filtered := make([]gateway.ClusterJob, 0, len(jobs))

	for _, job := range jobs {
		if s.MatchesFilters(job) {
			filtered = append(filtered, job)
		}
	}

	slices.SortStableFunc(filtered, s.compare)

	pages := max((len(filtered)+JobsPageSize-1)/JobsPageSize, 1)
	page := min(max(s.Page, 1), pages)

	start := min((page-1)*JobsPageSize, len(filtered))
	end := min(start+JobsPageSize, len(filtered))

	return JobsPage{
		Jobs:     filtered[start:end],
		Page:     page,
		Pages:    pages,
		Total:    len(jobs),
		Filtered: len(filtered),
	}
}

func (s *JobsViewSettings) compare(a, b gateway.ClusterJob) int {
	var c int

	switch s.Sort {
	case SortUser:
		c = cmp.Compare(a.UserName, b.UserName)
	case SortState:
		c = cmp.Compare(a.JobState, b.JobState)
	case SortAccount:
		c = cmp.Compare(a.Account, b.Account)
	case SortPartition:
		c = cmp.Compare(a.Partition, b.Partition)
	}

	if c != 0 {
		return c
	}

	return cmp.Compare(a.JobID, b.JobID)
}
