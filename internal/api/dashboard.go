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
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Dashboard reports estimated spend per provider and model from the run ledger.
func (h *Handlers) Dashboard(r *gin.RouterGroup) {
	stats := r.Group("/stats")
	{
		stats.GET("", func(c *gin.Context) {
			if h.History == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "run history is not enabled"})
				return
			}
			days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
			if err != nil || days < 1 {
				days = 30
			}
			since := time.Now().UTC().AddDate(0, 0, -days)
			spend, err := h.History.SpendSince(c.Request.Context(), since)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"since": since, "spend": spend})
		})
	}
}

func (h *Handlers) StatusRouter(r *gin.RouterGroup) {
	r.GET("/status", func(c *gin.Context) {
		routes := make([]string, 0)
		if h.Routes != nil {
			for _, route := range h.Routes.Routes() {
				routes = append(routes, route.String())
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":           "operational",
			"version":          h.Info.Version,
			"storage_mode":     h.Info.StorageMode,
			"dispatch_mode":    h.Info.DispatchMode,
			"default_provider": h.Info.DefaultProvider,
			"default_model":    h.Info.DefaultModel,
			"routes":           routes,
		})
	})
}
