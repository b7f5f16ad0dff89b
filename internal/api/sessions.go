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
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-video-clone/internal/core/model"
	"github.com/jaycherian/gcp-go-video-clone/internal/core/services"
)

// sessionView is a session together with the state of its latest run.
type sessionView struct {
	*model.Session
	Job *model.JobState `json:"job,omitempty"`
}

func (h *Handlers) view(c *gin.Context, session *model.Session) sessionView {
	out := sessionView{Session: session}
	if state, err := h.Pipeline.GetState(c.Request.Context(), session.SessionID); err == nil {
		out.Job = state
	}
	return out
}

func (h *Handlers) SessionRouter(r *gin.RouterGroup) {
	sessions := r.Group("/sessions")
	{
		sessions.POST("", func(c *gin.Context) {
			var req services.CreateSessionRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			session, err := h.Sessions.Create(c.Request.Context(), req)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusCreated, session)
		})

		sessions.GET("", func(c *gin.Context) {
			limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
			if err != nil || limit < 1 {
				limit = 20
			}
			offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
			if err != nil || offset < 0 {
				offset = 0
			}
			all, err := h.Sessions.List(c.Request.Context())
			if err != nil {
				writeError(c, err)
				return
			}
			page := make([]sessionView, 0, limit)
			for i := offset; i < len(all) && len(page) < limit; i++ {
				page = append(page, h.view(c, all[i]))
			}
			c.JSON(http.StatusOK, gin.H{"sessions": page, "total": len(all)})
		})

		sessions.GET("/:id", func(c *gin.Context) {
			session, err := h.Sessions.Get(c.Request.Context(), c.Param("id"))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, h.view(c, session))
		})

		sessions.DELETE("/:id", func(c *gin.Context) {
			id := c.Param("id")
			if err := h.Sessions.Delete(c.Request.Context(), id); err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"message": "Session deleted", "session_id": id})
		})

		sessions.POST("/:id/image", func(c *gin.Context) {
			h.uploadImage(c)
		})

		sessions.POST("/:id/generate", func(c *gin.Context) {
			id := c.Param("id")
			if err := h.Sessions.Generate(c.Request.Context(), id); err != nil {
				writeError(c, err)
				return
			}
			state, err := h.Pipeline.GetState(c.Request.Context(), id)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusAccepted, state)
		})

		sessions.GET("/:id/status", func(c *gin.Context) {
			state, err := h.Pipeline.GetState(c.Request.Context(), c.Param("id"))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, state)
		})

		sessions.GET("/:id/runs", func(c *gin.Context) {
			if h.History == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "run history is not enabled"})
				return
			}
			runs, err := h.History.History(c.Request.Context(), c.Param("id"))
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"runs": runs})
		})
	}
}

func (h *Handlers) uploadImage(c *gin.Context) {
	id := c.Param("id")
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if h.MaxImageBytes > 0 && file.Size > h.MaxImageBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image is too large"})
		return
	}

	tmpDir, err := os.MkdirTemp("", "upload-*")
	if err != nil {
		writeError(c, err)
		return
	}
	defer os.RemoveAll(tmpDir)
	tmpPath := filepath.Join(tmpDir, "image")
	if err := c.SaveUploadedFile(file, tmpPath); err != nil {
		writeError(c, err)
		return
	}

	session, err := h.Sessions.AttachImage(c.Request.Context(), id, tmpPath)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": id,
		"image_path": session.ProductImagePath,
		"message":    "Product image uploaded successfully",
	})
}
