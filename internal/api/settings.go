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

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-video-clone/internal/cloud"
)

// keysRequest updates only the keys that are present.
type keysRequest struct {
	GeminiKey *string `json:"gemini_key"`
	KieAIKey  *string `json:"kie_ai_key"`
	DefAPIKey *string `json:"defapi_key"`
}

func (h *Handlers) SettingsRouter(r *gin.RouterGroup) {
	settings := r.Group("/settings")
	{
		settings.GET("", func(c *gin.Context) {
			values, err := h.Settings.AllSettings(c.Request.Context())
			if err != nil {
				writeError(c, err)
				return
			}
			// Keys are never echoed back.
			c.JSON(http.StatusOK, gin.H{
				"gemini_key_set":   values[cloud.KeyGemini] != "",
				"kie_ai_key_set":   values[cloud.KeyKieAI] != "",
				"defapi_key_set":   values[cloud.KeyDefAPI] != "",
				"default_provider": h.Info.DefaultProvider,
				"default_model":    h.Info.DefaultModel,
			})
		})

		settings.POST("/keys", func(c *gin.Context) {
			var req keysRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			updates := make(map[string]string)
			for key, value := range map[string]*string{
				cloud.KeyGemini: req.GeminiKey,
				cloud.KeyKieAI:  req.KieAIKey,
				cloud.KeyDefAPI: req.DefAPIKey,
			} {
				if value != nil {
					updates[key] = *value
				}
			}
			if len(updates) > 0 {
				if err := h.Settings.SetSettings(c.Request.Context(), updates); err != nil {
					writeError(c, err)
					return
				}
			}
			updated := make([]string, 0, len(updates))
			for _, key := range []string{cloud.KeyGemini, cloud.KeyKieAI, cloud.KeyDefAPI} {
				if _, ok := updates[key]; ok {
					updated = append(updated, key)
				}
			}
			c.JSON(http.StatusOK, gin.H{"message": "API keys saved", "keys_updated": updated})
		})
	}
}
