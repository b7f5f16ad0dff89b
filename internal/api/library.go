// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/services"
)

// LibraryItem is one generated clip of a completed session.
type LibraryItem struct {
	SessionID    string          `json:"session_id"`
	VariantIndex int             `json:"variant_index"`
	ClipIndex    int             `json:"clip_index"`
	VideoURL     string          `json:"video_url"`
	ProductName  string          `json:"product_name"`
	Duration     float64         `json:"duration"`
	Provider     model.Provider  `json:"provider"`
	Model        model.ModelName `json:"model"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (h *Handlers) LibraryRouter(r *gin.RouterGroup) {
	r.GET("/library", func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit < 1 {
			limit = 50
		}
		offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if err != nil || offset < 0 {
			offset = 0
		}

		ctx := c.Request.Context()
		sessions, err := h.Sessions.List(ctx)
		if err != nil {
			writeError(c, err)
			return
		}
		items := make([]LibraryItem, 0)
		for _, s := range sessions {
			state, err := h.Pipeline.GetState(ctx, s.SessionID)
			if err != nil || state.Status != model.JobCompleted {
				continue
			}
			for _, v := range state.Variants {
				for _, clip := range v.Clips {
					if clip.VideoURL == "" {
						continue
					}
					items = append(items, LibraryItem{
						SessionID:    s.SessionID,
						VariantIndex: v.VariantIndex,
						ClipIndex:    clip.ClipIndex,
						VideoURL:     clip.VideoURL,
						ProductName:  s.ProductName,
						Duration:     clip.Duration,
						Provider:     s.Provider,
						Model:        s.Model,
						CreatedAt:    s.CreatedAt,
					})
				}
			}
		}
		sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

		total := len(items)
		if offset > total {
			offset = total
		}
		end := offset + limit
		if end > total {
			end = total
		}
		c.JSON(http.StatusOK, gin.H{"videos": items[offset:end], "total": total})
	})

	r.GET("/estimate", func(c *gin.Context) {
		numVariants, err := strconv.Atoi(c.DefaultQuery("num_variants", "1"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "num_variants must be a number"})
			return
		}
		duration, err := strconv.ParseFloat(c.DefaultQuery("duration", "30"), 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "duration must be a number"})
			return
		}
		provider := model.Provider(c.DefaultQuery("provider", h.Info.DefaultProvider))
		m := model.ModelName(c.DefaultQuery("model", h.Info.DefaultModel))
		strategy := model.Strategy(c.DefaultQuery("strategy", string(model.DefaultStrategy)))

		est, err := services.EstimateCost(provider, m, strategy, numVariants, duration)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, est)
	})
}
