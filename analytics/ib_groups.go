package analytics

import (
	"context"
	"fmt"
	"sort"
)

const ibTagsSQL = `SELECT id AS tag_id, tag AS tag_name FROM fxbackoffice_tags WHERE categoryId = 6`

const ibTagCountsSQL = `SELECT tagId, count(DISTINCT userId) AS user_count FROM fxbackoffice_user_tags GROUP BY tagId`

// updateTimeLayout formats the group list update times.
const updateTimeLayout = "2006-01-02 15:04:05"

// IBGroup is one IB group tag.
type IBGroup struct {
	TagID     string `json:"tag_id"`
	TagName   string `json:"tag_name"`
	UserCount int64  `json:"user_count"`
}

// IBGroupList is the IB group list with its refresh history.
type IBGroupList struct {
	GroupList          []IBGroup `json:"group_list"`
	LastUpdateTime     string    `json:"last_update_time"`
	PreviousUpdateTime string    `json:"previous_update_time"`
	TotalGroups        int       `json:"total_groups"`
}

// IBGroups returns the IB group tags with their distinct user counts, most
// populated first. The list is kept in memory for a week. When the refresh
// fails a previously loaded list is returned instead.
func (s *Service) IBGroups(ctx context.Context) (IBGroupList, error) {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()

	now := s.now()
	if s.groups != nil && now.Before(s.groupsExpiry) {
		return *s.groups, nil
	}

	groups, err := s.loadIBGroups(ctx)
	if err != nil {
		if s.groups != nil {
			s.log.WithError(err).Warn("ib groups refresh failed, serving the previous list")
			return *s.groups, nil
		}
		return IBGroupList{}, err
	}

	previous := "N/A"
	if s.groups != nil {
		previous = s.groups.LastUpdateTime
	}
	list := &IBGroupList{
		GroupList:          groups,
		LastUpdateTime:     now.Format(updateTimeLayout),
		PreviousUpdateTime: previous,
		TotalGroups:        len(groups),
	}
	s.groups = list
	s.groupsExpiry = now.Add(ibGroupsTTL)
	s.log.Infof("ib groups cache updated, found %d groups", len(groups))
	return *list, nil
}

func (s *Service) loadIBGroups(ctx context.Context) ([]IBGroup, error) {
	tags, err := s.prod.Query(ctx, ibTagsSQL, nil)
	if err != nil {
		return nil, fmt.Errorf("ib group tags query: %w", err)
	}
	counts, err := s.prod.Query(ctx, ibTagCountsSQL, nil)
	if err != nil {
		return nil, fmt.Errorf("ib group counts query: %w", err)
	}

	byTag := make(map[string]int64, len(counts.Data))
	for _, row := range counts.Data {
		byTag[asString(row["tagId"])] = int64(asFloat(row["user_count"]))
	}

	groups := make([]IBGroup, 0, len(tags.Data))
	for _, row := range tags.Data {
		id := asString(row["tag_id"])
		groups = append(groups, IBGroup{
			TagID:     id,
			TagName:   asString(row["tag_name"]),
			UserCount: byTag[id],
		})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].UserCount > groups[j].UserCount
	})
	return groups, nil
}
