package core

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

func loadTemplates() *template.Template {
	return template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))
}

type landingCard struct {
	Title    string
	Subtitle string
	Icon     string
	Link     string
}

type dashboardSection struct {
	Slug  string
	Title string
}

var dashboardSections = []dashboardSection{
	{Slug: "projetos", Title: "Projetos"},
	{Slug: "avaliacoes", Title: "Avaliações"},
	{Slug: "pessoas", Title: "Pessoas"},
	{Slug: "premios", Title: "Prêmios"},
	{Slug: "cronogramas", Title: "Cronogramas"},
}

func findSection(slug string) (dashboardSection, bool) {
	for _, s := range dashboardSections {
		if s.Slug == slug {
			return s, true
		}
	}
	return dashboardSection{}, false
}

type pages struct {
	cfg Config
}

func (p pages) data(title string, extra gin.H) gin.H {
	h := gin.H{
		"Title":        title,
		"HomePath":     p.cfg.HomePath,
		"LoginPath":    p.cfg.LoginPath,
		"ShowLogin":    true,
		"ShowRegister": true,
	}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func (p pages) home(c *gin.Context) {
	link := p.cfg.LandingPath
	c.HTML(http.StatusOK, "home.html", p.data("Início", gin.H{
		"Cards": []landingCard{
			{Title: "Submissão de Projetos", Subtitle: "Submeta seus projetos de forma simples e organizada.", Icon: "bi-file-earmark-text", Link: link},
			{Title: "Avaliação", Subtitle: "Processo de avaliação transparente e eficiente.", Icon: "bi-check-circle", Link: link},
			{Title: "Gestão de Pessoas", Subtitle: "Gerencie autores e avaliadores em um só lugar.", Icon: "bi-people", Link: link},
			{Title: "Premiação", Subtitle: "Reconheça os melhores projetos com prêmios personalizados.", Icon: "bi-award", Link: link},
		},
	}))
}

func (p pages) register(c *gin.Context) {
	c.HTML(http.StatusOK, "register.html", p.data("Cadastro", gin.H{"ShowRegister": false}))
}

func (p pages) login(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", p.data("Entrar", gin.H{"ShowLogin": false, "Action": p.cfg.LoginPath}))
}

func (p pages) loginSubmit(c *gin.Context) {
	username := c.PostForm("username")

	ctx, cancel := context.WithTimeout(c.Request.Context(), p.cfg.AuthTimeout)
	defer cancel()

	if err := loginInContext(ctx, c, username, c.PostForm("password")); err != nil {
		status, _, message := loginFailure(err)
		c.HTML(status, "login.html", p.data("Entrar", gin.H{
			"ShowLogin": false,
			"Action":    p.cfg.LoginPath,
			"Error":     message,
			"Username":  username,
		}))
		return
	}
	c.Redirect(http.StatusFound, p.cfg.LandingPath)
}

func (p pages) logout(c *gin.Context) {
	authFromContext(c).Logout()
	c.Redirect(http.StatusFound, p.cfg.HomePath)
}

func (p pages) dashboard(c *gin.Context) {
	p.renderDashboard(c, http.StatusOK, "", "Painel")
}

func (p pages) dashboardSection(c *gin.Context) {
	section, ok := findSection(c.Param("section"))
	if !ok {
		p.renderDashboard(c, http.StatusNotFound, "", "Página não encontrada")
		return
	}
	p.renderDashboard(c, http.StatusOK, section.Slug, section.Title)
}

func (p pages) renderDashboard(c *gin.Context, status int, active, heading string) {
	username := "No User"
	if record, ok := authFromContext(c).Current(); ok {
		username = record.Username
	}
	c.HTML(status, "dashboard.html", p.data(heading, gin.H{
		"Username":  username,
		"Base":      p.cfg.LandingPath,
		"Sections":  dashboardSections,
		"Active":    active,
		"Heading":   heading,
		"CSRFToken": c.GetString(ctxKeyCSRF),
	}))
}

// loginInContext logs in through the request's AuthService, refusing when the slot behind it
// could not be opened.
func loginInContext(ctx context.Context, c *gin.Context, username, password string) error {
	if err := slotError(c); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	return authFromContext(c).Login(ctx, username, password)
}

// loginFailure maps a login error to HTTP status, error code and user-facing message.
func loginFailure(err error) (int, string, string) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Usuário ou senha inválidos."
	case errors.Is(err, ErrSessionUnavailable):
		return http.StatusServiceUnavailable, "SESSION_UNAVAILABLE", "Não foi possível manter a sessão. Tente novamente."
	case errors.Is(err, ErrAuthUnavailable):
		return http.StatusBadGateway, "AUTH_UNAVAILABLE", "Serviço de autenticação indisponível. Tente novamente."
	default:
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Não foi possível iniciar a sessão."
	}
}
