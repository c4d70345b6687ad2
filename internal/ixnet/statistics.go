// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ixnet

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang/glog"
)

// FlowStatisticsView is the caption of the per flow statistics view.
const FlowStatisticsView = "Flow Statistics"

// Row is one row of a statistics view, keyed by column caption, e.g.
// "Tx Frames".
type Row map[string]string

// FlowStats maps a flow group number, starting at 1 in view order, to its
// row.
type FlowStats map[int]Row

type viewObject struct {
	ID      int    `json:"id"`
	Caption string `json:"caption"`
}

type pageObject struct {
	IsReady        bool         `json:"isReady"`
	ColumnCaptions []string     `json:"columnCaptions"`
	PageValues     [][][]string `json:"pageValues"`
	TotalPages     int          `json:"totalPages"`
	CurrentPage    int          `json:"currentPage"`
}

func (s *Session) findView(ctx context.Context, caption string) (Href, bool, error) {
	var views []viewObject
	if err := s.get(ctx, s.root.Join("statistics", "view"), &views); err != nil {
		return "", false, err
	}
	for _, v := range views {
		if v.Caption == caption {
			return s.root.Join("statistics", "view", strconv.Itoa(v.ID)), true, nil
		}
	}
	return "", false, nil
}

// GetStats waits for the view with the given caption to be ready and
// returns all of its rows.
func (s *Session) GetStats(ctx context.Context, viewName string, timeout time.Duration) (FlowStats, error) {
	var view Href
	err := s.waitFor(ctx, fmt.Sprintf("statistics view %q", viewName), timeout, func() (bool, error) {
		href, ok, err := s.findView(ctx, viewName)
		view = href
		return ok, err
	})
	if err != nil {
		return nil, err
	}

	page := view.Join("page")
	first, err := s.readPage(ctx, page, viewName, 1, timeout)
	if err != nil {
		return nil, err
	}

	stats := FlowStats{}
	addRows(stats, first)
	for n := 2; n <= first.TotalPages; n++ {
		if err := s.patch(ctx, page, map[string]int{"currentPage": n}); err != nil {
			return nil, err
		}
		p, err := s.readPage(ctx, page, viewName, n, timeout)
		if err != nil {
			return nil, err
		}
		addRows(stats, p)
	}
	glog.Infof("Read %d rows from statistics view %q", len(stats), viewName)
	return stats, nil
}

// readPage waits for page n of the view to be ready and returns it.
func (s *Session) readPage(ctx context.Context, page Href, viewName string, n int, timeout time.Duration) (pageObject, error) {
	var p pageObject
	err := s.waitFor(ctx, fmt.Sprintf("statistics view %q page %d ready", viewName, n), timeout, func() (bool, error) {
		p = pageObject{}
		if err := s.get(ctx, page, &p); err != nil {
			return false, err
		}
		return p.IsReady && p.CurrentPage == n && len(p.PageValues) > 0, nil
	})
	return p, err
}

func addRows(stats FlowStats, p pageObject) {
	for _, values := range p.PageValues {
		if len(values) == 0 {
			continue
		}
		row := Row{}
		for i, caption := range p.ColumnCaptions {
			if i < len(values[0]) {
				row[caption] = values[0][i]
			}
		}
		stats[len(stats)+1] = row
	}
}
