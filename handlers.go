package main

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sessionCookie = "chat_session"

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"year":  func() int { return time.Now().Year() },
		"join":  strings.Join,
		"clock": func(t time.Time) string { return t.Format("15:04") },
		"date":  func(t time.Time) string { return t.Format("2006-01-02 15:04") },
	}
}

func isHTMX(c *gin.Context) bool {
	return c.GetHeader("HX-Request") == "true"
}

// sessionID returns the visitor's chat session, issuing a new one when the
// cookie is missing or not a UUID.
func (app *App) sessionID(c *gin.Context) string {
	if id, err := c.Cookie(sessionCookie); err == nil {
		if _, err := uuid.Parse(id); err == nil {
			return id
		}
	}
	id := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, id, int(app.cfg.Chat.SessionTTL.Seconds()), "/", "", gin.Mode() == gin.ReleaseMode, true)
	return id
}

// chatView is the data behind the chat widget fragment.
func (app *App) chatView(messages []Message, notice string) gin.H {
	return gin.H{
		"messages":   messages,
		"notice":     notice,
		"disclaimer": fmt.Sprintf(AssistantDisclaimer, app.profile.Developer.FirstName()),
	}
}

func (app *App) galleryView(tag string) gin.H {
	if tag == "" {
		tag = AllTag
	}
	return gin.H{
		"tags":       app.profile.AllTags(),
		"activeTag":  tag,
		"projects":   app.profile.FilterProjects(tag),
		"noProjects": NoProjectsText,
	}
}

func (app *App) setupPageRoutes(r *gin.Engine) {
	r.GET("/", app.renderIndex)

	// Gallery fragment for the tag filter
	r.GET("/projects", func(c *gin.Context) {
		if !isHTMX(c) {
			app.renderIndex(c)
			return
		}
		c.HTML(http.StatusOK, "projects.html", app.galleryView(c.Query("tag")))
	})

	// Project detail modal
	r.GET("/projects/:id", func(c *gin.Context) {
		project, err := app.profile.FindProject(c.Param("id"))
		if errors.Is(err, ErrProjectNotFound) {
			c.HTML(http.StatusNotFound, "not-found.html", gin.H{
				"title": "Project not found",
			})
			return
		}
		if !isHTMX(c) {
			app.renderIndex(c)
			return
		}
		c.HTML(http.StatusOK, "project-modal.html", project)
	})

	r.GET("/chat", func(c *gin.Context) {
		msgs, err := app.chat.Transcript(c.Request.Context(), app.sessionID(c))
		if err != nil {
			slog.Error("loading transcript", "error", err)
		}
		c.HTML(http.StatusOK, "chat.html", app.chatView(msgs, ""))
	})

	r.POST("/chat", app.chatLimiter.Middleware(), func(c *gin.Context) {
		id := app.sessionID(c)
		msgs, err := app.chat.Send(c.Request.Context(), id, c.PostForm("message"))

		notice := ""
		switch {
		case err == nil:
		case errors.Is(err, ErrEmptyMessage):
		case errors.Is(err, ErrChatBusy):
			notice = "Still thinking about your last question..."
		default:
			slog.Error("chat turn", "session", id, "error", err)
			notice = ChatApology
		}
		if msgs == nil {
			if msgs, err = app.chat.Transcript(c.Request.Context(), id); err != nil {
				slog.Error("loading transcript", "error", err)
			}
		}
		c.HTML(http.StatusOK, "chat.html", app.chatView(msgs, notice))
	})

	r.POST("/chat/reset", func(c *gin.Context) {
		id := app.sessionID(c)
		notice := ""
		if err := app.chat.Reset(c.Request.Context(), id); errors.Is(err, ErrChatBusy) {
			notice = "Still thinking about your last question..."
		} else if err != nil {
			slog.Error("resetting transcript", "error", err)
		}
		msgs, _ := app.chat.Transcript(c.Request.Context(), id)
		c.HTML(http.StatusOK, "chat.html", app.chatView(msgs, notice))
	})

	r.GET("/contact-form", func(c *gin.Context) {
		c.HTML(http.StatusOK, "contact.html", gin.H{
			"title": "Contact Me",
		})
	})

	r.POST("/contact", app.contactLimiter.Middleware(), func(c *gin.Context) {
		var form ContactForm
		if err := c.ShouldBind(&form); err != nil {
			app.metrics.contactMessage("invalid")
			c.HTML(http.StatusOK, "contact-error.html", gin.H{
				"error": "Please provide your name, a valid email address and a message.",
			})
			return
		}

		msg, err := app.contact.Submit(c.Request.Context(), form, app.clientKey(c))
		if errors.Is(err, ErrInvalidContact) {
			c.HTML(http.StatusOK, "contact-error.html", gin.H{
				"error": "Please provide your name, a valid email address and a message.",
			})
			return
		}
		// A stored message has been received even if mail delivery failed.
		if msg == nil {
			c.HTML(http.StatusOK, "contact-error.html", gin.H{"error": ContactErrorText})
			return
		}

		c.HTML(http.StatusOK, "contact-success.html", gin.H{
			"success": ContactSuccessText,
		})
	})
}

// renderIndex renders the whole page. The tag query and a /projects/:id path
// are honored so the page works without JavaScript.
func (app *App) renderIndex(c *gin.Context) {
	msgs, err := app.chat.Transcript(c.Request.Context(), app.sessionID(c))
	if err != nil {
		slog.Error("loading transcript", "error", err)
	}

	var selected *Project
	if id := c.Param("id"); id != "" {
		selected, _ = app.profile.FindProject(id)
	}

	c.HTML(http.StatusOK, "index.html", gin.H{
		"title":              app.profile.Developer.Name,
		"developer":          app.profile.Developer,
		"nav":                NavLinks,
		"heroBadge":          HeroBadge,
		"heroHeadline":       HeroHeadline,
		"heroAccent":         HeroAccent,
		"expertise":          ExpertiseCards,
		"projectsSubtitle":   ProjectsSubtitle,
		"gallery":            app.galleryView(c.Query("tag")),
		"selected":           selected,
		"skillsSubtitle":     SkillsSubtitle,
		"skills":             app.profile.TopSkills(6),
		"chart":              app.profile.ChartSlices(),
		"assistantSubtitle":  AssistantSubtitle,
		"assistantBlurb":     AssistantBlurb,
		"suggestedQuestions": SuggestedQuestions,
		"chat":               app.chatView(msgs, ""),
		"contactSubtitle":    ContactSubtitle,
		"contactBlurb":       ContactBlurb,
	})
}

func (app *App) setupAPIRoutes(r *gin.Engine) {
	api := r.Group("/api")
	api.Use(app.corsMiddleware())

	api.GET("/profile", func(c *gin.Context) {
		c.JSON(http.StatusOK, app.profile)
	})

	api.GET("/tags", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tags": app.profile.AllTags()})
	})

	api.GET("/projects", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"projects": app.profile.FilterProjects(c.Query("tag"))})
	})

	api.GET("/projects/:id", func(c *gin.Context) {
		project, err := app.profile.FindProject(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
			return
		}
		c.JSON(http.StatusOK, project)
	})

	api.GET("/skills", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"skills":    app.profile.Skills,
			"ecosystem": app.profile.ChartSlices(),
		})
	})

	api.GET("/chat", func(c *gin.Context) {
		id := app.sessionID(c)
		msgs, err := app.chat.Transcript(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load conversation"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs, "loading": app.chat.IsLoading(id)})
	})

	api.POST("/chat", app.chatLimiter.Middleware(), func(c *gin.Context) {
		var req struct {
			Message string `json:"message"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		msgs, err := app.chat.Send(c.Request.Context(), app.sessionID(c), req.Message)
		switch {
		case errors.Is(err, ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message must not be empty"})
		case errors.Is(err, ErrChatBusy):
			c.JSON(http.StatusConflict, gin.H{"error": "A reply is already being generated"})
		case err != nil:
			slog.Error("chat turn", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process message"})
		default:
			c.JSON(http.StatusOK, gin.H{"messages": msgs, "reply": msgs[len(msgs)-1]})
		}
	})

	api.DELETE("/chat", func(c *gin.Context) {
		err := app.chat.Reset(c.Request.Context(), app.sessionID(c))
		if errors.Is(err, ErrChatBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": "A reply is already being generated"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset conversation"})
			return
		}
		c.Status(http.StatusNoContent)
	})

	api.POST("/contact", app.contactLimiter.Middleware(), func(c *gin.Context) {
		var form ContactForm
		if err := c.ShouldBindJSON(&form); err != nil {
			app.metrics.contactMessage("invalid")
			c.JSON(http.StatusBadRequest, gin.H{"error": ErrInvalidContact.Error()})
			return
		}
		msg, err := app.contact.Submit(c.Request.Context(), form, app.clientKey(c))
		switch {
		case errors.Is(err, ErrInvalidContact):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case msg == nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": ContactErrorText})
		default:
			c.JSON(http.StatusAccepted, gin.H{"id": msg.ID, "delivered": msg.Delivered, "message": ContactSuccessText})
		}
	})
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

func (app *App) health(c *gin.Context) {
	resp := HealthResponse{Status: "healthy", Service: serviceName, Version: serviceVersion}
	if err := app.store.Ping(c.Request.Context()); err != nil {
		resp.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
