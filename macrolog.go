// Package macrolog provides the official Go SDK for the MacroLog
// nutrition-tracking API.
//
// The client covers food search, meal logging, goals, recipes, meal
// templates, profile/progress, barcode lookup, and the social feed. An
// optional offline layer queues mutating calls while the host is offline and
// replays them when connectivity returns.
//
// Example:
//
//	client := macrolog.NewClient("ml-token-...")
//
//	foods, _ := client.Foods.Search(ctx, "tofu", 10)
//	result, _ := client.Meals.Log(ctx, &macrolog.LogMealOptions{FoodID: 42, Grams: 150})
//
//	// Offline-first setup
//	store, _ := macrolog.OpenSQLiteStore("/var/lib/macrolog/offline.db", nil)
//	offline := macrolog.NewOfflineManager(store, client, nil)
//	client.AttachOffline(offline)
package macrolog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ============================================================================
// Environment
// ============================================================================

type Environment string

const (
	Production Environment = "production"
	Staging    Environment = "staging"
)

var environments = map[Environment]string{
	Production: "https://api.macrolog.app",
	Staging:    "https://staging.api.macrolog.app",
}

const (
	DefaultBaseURL = "https://api.macrolog.app"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

type Client struct {
	token      string
	baseURL    string
	userAgent  string
	httpClient *http.Client
	offline    *OfflineManager

	Auth      *AuthClient
	Meals     *MealsClient
	Foods     *FoodsClient
	Goals     *GoalsClient
	Recipes   *RecipesClient
	Templates *TemplatesClient
	Profile   *ProfileClient
	Social    *SocialClient
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithEnvironment(env Environment) ClientOption {
	return func(c *Client) {
		if u, ok := environments[env]; ok {
			c.baseURL = u
		}
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithUserAgent(agent string) ClientOption {
	return func(c *Client) { c.userAgent = agent }
}

// NewClient creates a new MacroLog client.
// token is optional; pass "" for unauthenticated calls (register, login).
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Auth = &AuthClient{client: c}
	c.Meals = &MealsClient{client: c}
	c.Foods = &FoodsClient{client: c}
	c.Goals = &GoalsClient{client: c}
	c.Recipes = &RecipesClient{client: c}
	c.Templates = &TemplatesClient{client: c}
	c.Profile = &ProfileClient{client: c}
	c.Social = &SocialClient{client: c}
	return c
}

// SetToken sets or updates the auth token, e.g. after Auth.Login.
func (c *Client) SetToken(token string) {
	c.token = token
}

// AttachOffline routes all client requests through the given offline manager.
// Pass nil to detach and go back to direct network calls.
func (c *Client) AttachOffline(o *OfflineManager) {
	c.offline = o
}

// Offline returns the attached offline manager, or nil.
func (c *Client) Offline() *OfflineManager {
	return c.offline
}

// ============================================================================
// Internal request helpers
// ============================================================================

// joinAddress builds the relative address (path plus encoded query) used both
// as the request target and as the cache key for reads.
func joinAddress(path string, query map[string]string) string {
	if len(query) == 0 {
		return path
	}
	params := url.Values{}
	for k, v := range query {
		params.Set(k, v)
	}
	return path + "?" + params.Encode()
}

// captureHeaders snapshots the headers a request would carry right now,
// including the auth token if one is set. Queued requests replay with this
// snapshot rather than whatever the client holds later.
func (c *Client) captureHeaders(hasBody bool) map[string]string {
	h := map[string]string{}
	if hasBody {
		h["Content-Type"] = "application/json"
	}
	if c.token != "" {
		h["Authorization"] = "Bearer " + c.token
	}
	if c.userAgent != "" {
		h["User-Agent"] = c.userAgent
	}
	return h
}

// send performs one HTTP round trip. address is relative (may carry a query
// string). A non-2xx status is returned as an *APIError; transport errors are
// wrapped unchanged.
func (c *Client) send(ctx context.Context, method, address string, headers map[string]string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+address, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, data)
	}
	return data, nil
}

// doRequest is the common path for all sub-client calls. When an offline
// manager is attached the request is routed through it; otherwise it goes
// straight to the network.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	var raw []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		raw = b
	}

	if c.offline != nil {
		data, err := c.offline.dispatch(ctx, method, path, raw, query)
		if err != nil {
			return nil, err
		}
		return data, nil
	}

	address := joinAddress(path, query)
	return c.send(ctx, method, address, c.captureHeaders(raw != nil), raw)
}

// ============================================================================
// Auth
// ============================================================================

// AuthClient handles registration, login, and identity.
type AuthClient struct{ client *Client }

func (a *AuthClient) Register(ctx context.Context, opts *RegisterOptions) (*AuthData, error) {
	data, err := a.client.doRequest(ctx, "POST", "/auth/register", opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[AuthData](data)
}

func (a *AuthClient) Login(ctx context.Context, opts *LoginOptions) (*AuthData, error) {
	data, err := a.client.doRequest(ctx, "POST", "/auth/login", opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[AuthData](data)
}

func (a *AuthClient) Me(ctx context.Context) (*User, error) {
	data, err := a.client.doRequest(ctx, "GET", "/me", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[User](data)
}

// Goals reads the signed-in user's stored goals. Unlike Goals.Get this needs
// no user ID; the server resolves the account from the token.
func (a *AuthClient) Goals(ctx context.Context) (*Goals, error) {
	data, err := a.client.doRequest(ctx, "GET", "/me/goals", nil, nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Goals Goals `json:"goals"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &payload.Goals, nil
}

func (a *AuthClient) SetGoals(ctx context.Context, goals *Goals) (*MutationResult, error) {
	body := map[string]*Goals{"goals": goals}
	data, err := a.client.doRequest(ctx, "PUT", "/me/goals", body, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MutationResult](data)
}

// ============================================================================
// Meals
// ============================================================================

// MealsClient handles meal logging and daily summaries.
type MealsClient struct{ client *Client }

// Log records a meal. When the offline layer queues the request the returned
// result carries Offline=true and the queue record's ID.
func (m *MealsClient) Log(ctx context.Context, opts *LogMealOptions) (*LogMealResult, error) {
	data, err := m.client.doRequest(ctx, "POST", "/meals", opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[LogMealResult](data)
}

func (m *MealsClient) DaySummary(ctx context.Context, date string) (*DaySummary, error) {
	var query map[string]string
	if date != "" {
		query = map[string]string{"date": date}
	}
	data, err := m.client.doRequest(ctx, "GET", "/summary/day", nil, query)
	if err != nil {
		return nil, err
	}
	return decodeJSON[DaySummary](data)
}

// GenerateMealPlan asks the server to build a day plan that fits the user's
// current goals.
func (m *MealsClient) GenerateMealPlan(ctx context.Context, userID int) (*MealPlan, error) {
	data, err := m.client.doRequest(ctx, "POST", fmt.Sprintf("/meal-plan/%d", userID), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MealPlan](data)
}

// ============================================================================
// Foods
// ============================================================================

// FoodsClient handles food search and barcode lookups.
type FoodsClient struct{ client *Client }

func (f *FoodsClient) Search(ctx context.Context, query string, limit int) (*FoodSearchResult, error) {
	q := map[string]string{"query": query}
	if limit > 0 {
		q["limit"] = fmt.Sprintf("%d", limit)
	}
	data, err := f.client.doRequest(ctx, "GET", "/foods", nil, q)
	if err != nil {
		return nil, err
	}
	return decodeJSON[FoodSearchResult](data)
}

func (f *FoodsClient) BarcodeLookup(ctx context.Context, upc string) (*BarcodeScanResult, error) {
	data, err := f.client.doRequest(ctx, "GET", "/barcode/lookup", nil, map[string]string{"upc": upc})
	if err != nil {
		return nil, err
	}
	return decodeJSON[BarcodeScanResult](data)
}

// BarcodeScan resolves a UPC or a base64-encoded barcode image to a food.
func (f *FoodsClient) BarcodeScan(ctx context.Context, opts *BarcodeScanOptions) (*BarcodeScanResult, error) {
	data, err := f.client.doRequest(ctx, "POST", "/barcode/scan", opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[BarcodeScanResult](data)
}

func (f *FoodsClient) BarcodeHistory(ctx context.Context, userID int) ([]BarcodeScan, error) {
	data, err := f.client.doRequest(ctx, "GET", fmt.Sprintf("/barcode/history/%d", userID), nil, nil)
	if err != nil {
		return nil, err
	}
	var scans []BarcodeScan
	if err := json.Unmarshal(data, &scans); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return scans, nil
}

// PopularBarcodes lists the most frequently scanned products across all users.
func (f *FoodsClient) PopularBarcodes(ctx context.Context, limit int) ([]PopularProduct, error) {
	var query map[string]string
	if limit > 0 {
		query = map[string]string{"limit": fmt.Sprintf("%d", limit)}
	}
	data, err := f.client.doRequest(ctx, "GET", "/barcode/popular", nil, query)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Products []PopularProduct `json:"popularProducts"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return payload.Products, nil
}

// ============================================================================
// Goals
// ============================================================================

// GoalsClient handles daily macro goals and goal templates.
type GoalsClient struct{ client *Client }

func (g *GoalsClient) Get(ctx context.Context, userID int) (*Goals, error) {
	data, err := g.client.doRequest(ctx, "GET", fmt.Sprintf("/users/%d/goals", userID), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Goals](data)
}

func (g *GoalsClient) Set(ctx context.Context, userID int, goals *Goals) (*MutationResult, error) {
	data, err := g.client.doRequest(ctx, "PUT", fmt.Sprintf("/users/%d/goals", userID), goals, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MutationResult](data)
}

func (g *GoalsClient) GetAdvanced(ctx context.Context, userID int) (*AdvancedGoals, error) {
	data, err := g.client.doRequest(ctx, "GET", fmt.Sprintf("/advanced-goals/%d", userID), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[AdvancedGoals](data)
}

func (g *GoalsClient) SetAdvanced(ctx context.Context, userID int, goals *AdvancedGoals) (*MutationResult, error) {
	data, err := g.client.doRequest(ctx, "POST", fmt.Sprintf("/advanced-goals/%d", userID), goals, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MutationResult](data)
}

func (g *GoalsClient) Templates(ctx context.Context) ([]GoalTemplate, error) {
	data, err := g.client.doRequest(ctx, "GET", "/goal-templates", nil, nil)
	if err != nil {
		return nil, err
	}
	var templates []GoalTemplate
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return templates, nil
}

func (g *GoalsClient) ApplyTemplate(ctx context.Context, userID int, templateName string) (*MutationResult, error) {
	body := map[string]string{"template": templateName}
	data, err := g.client.doRequest(ctx, "POST", fmt.Sprintf("/advanced-goals/%d/apply-template", userID), body, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MutationResult](data)
}

// ForDate resolves the effective goals for one calendar day. date is ISO
// (YYYY-MM-DD); empty means today.
func (g *GoalsClient) ForDate(ctx context.Context, userID int, date string) (*DatedGoals, error) {
	var query map[string]string
	if date != "" {
		query = map[string]string{"date": date}
	}
	data, err := g.client.doRequest(ctx, "GET", fmt.Sprintf("/goals-for-date/%d", userID), nil, query)
	if err != nil {
		return nil, err
	}
	return decodeJSON[DatedGoals](data)
}

// ============================================================================
// Recipes
// ============================================================================

// RecipesClient handles user recipes.
type RecipesClient struct{ client *Client }

func (r *RecipesClient) List(ctx context.Context, userID int) ([]Recipe, error) {
	data, err := r.client.doRequest(ctx, "GET", fmt.Sprintf("/recipes/%d", userID), nil, nil)
	if err != nil {
		return nil, err
	}
	var recipes []Recipe
	if err := json.Unmarshal(data, &recipes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return recipes, nil
}

func (r *RecipesClient) Create(ctx context.Context, userID int, recipe *Recipe) (*MutationResult, error) {
	data, err := r.client.doRequest(ctx, "POST", fmt.Sprintf("/recipes/%d", userID), recipe, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MutationResult](data)
}

// ToFood converts a recipe into a loggable food entry.
func (r *RecipesClient) ToFood(ctx context.Context, recipeID, userID int) (*MutationResult, error) {
	data, err := r.client.doRequest(ctx, "POST", fmt.Sprintf("/recipes/%d/to-food/%d", recipeID, userID), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MutationResult](data)
}

func (r *RecipesClient) Delete(ctx context.Context, recipeID, userID int) (*MutationResult, error) {
	data, err := r.client.doRequest(ctx, "DELETE", fmt.Sprintf("/recipes/%d/%d", recipeID, userID), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MutationResult](data)
}

// ============================================================================
// Meal Templates
// ============================================================================

// TemplatesClient handles reusable meal templates.
type TemplatesClient struct{ client *Client }

func (t *TemplatesClient) List(ctx context.Context, userID int) ([]MealTemplate, error) {
	data, err := t.client.doRequest(ctx, "GET", fmt.Sprintf("/meal-templates/%d", userID), nil, nil)
	if err != nil {
		return nil, err
	}
	var templates []MealTemplate
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return templates, nil
}

func (t *TemplatesClient) Save(ctx context.Context, userID int, template *MealTemplate) (*MutationResult, error) {
	data, err := t.client.doRequest(ctx, "POST", fmt.Sprintf("/meal-templates/%d", userID), template, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MutationResult](data)
}

// Apply logs every item of the template as a meal in one call.
func (t *TemplatesClient) Apply(ctx context.Context, templateID, userID int) (*MutationResult, error) {
	data, err := t.client.doRequest(ctx, "POST", fmt.Sprintf("/meal-templates/%d/apply/%d", templateID, userID), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MutationResult](data)
}

func (t *TemplatesClient) Delete(ctx context.Context, templateID, userID int) (*MutationResult, error) {
	data, err := t.client.doRequest(ctx, "DELETE", fmt.Sprintf("/meal-templates/%d/%d", templateID, userID), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MutationResult](data)
}

// ============================================================================
// Profile
// ============================================================================

// ProfileClient handles the user profile, progress data, and export.
type ProfileClient struct{ client *Client }

func (p *ProfileClient) Get(ctx context.Context, userID int) (*Profile, error) {
	data, err := p.client.doRequest(ctx, "GET", fmt.Sprintf("/profile/%d", userID), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Profile](data)
}

func (p *ProfileClient) Update(ctx context.Context, userID int, profile *Profile) (*MutationResult, error) {
	data, err := p.client.doRequest(ctx, "POST", fmt.Sprintf("/profile/%d", userID), profile, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MutationResult](data)
}

func (p *ProfileClient) Progress(ctx context.Context, userID int, days int) (*ProgressData, error) {
	var query map[string]string
	if days > 0 {
		query = map[string]string{"days": fmt.Sprintf("%d", days)}
	}
	data, err := p.client.doRequest(ctx, "GET", fmt.Sprintf("/progress/%d", userID), nil, query)
	if err != nil {
		return nil, err
	}
	return decodeJSON[ProgressData](data)
}

// Export returns the user's full data export as raw JSON.
func (p *ProfileClient) Export(ctx context.Context, userID int) (json.RawMessage, error) {
	data, err := p.client.doRequest(ctx, "GET", fmt.Sprintf("/export/%d", userID), nil, nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// ============================================================================
// Social
// ============================================================================

// SocialClient handles the social feed, challenges, and follows.
type SocialClient struct{ client *Client }

func (s *SocialClient) Feed(ctx context.Context, userID int) ([]SocialPost, error) {
	data, err := s.client.doRequest(ctx, "GET", fmt.Sprintf("/social/feed/%d", userID), nil, nil)
	if err != nil {
		return nil, err
	}
	var posts []SocialPost
	if err := json.Unmarshal(data, &posts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return posts, nil
}

func (s *SocialClient) Share(ctx context.Context, opts *ShareOptions) (*MutationResult, error) {
	data, err := s.client.doRequest(ctx, "POST", "/social/share", opts, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MutationResult](data)
}

func (s *SocialClient) Like(ctx context.Context, postID int) (*MutationResult, error) {
	data, err := s.client.doRequest(ctx, "POST", "/social/like", map[string]int{"postId": postID}, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MutationResult](data)
}

func (s *SocialClient) Comment(ctx context.Context, postID int, content string) (*MutationResult, error) {
	body := map[string]interface{}{"postId": postID, "content": content}
	data, err := s.client.doRequest(ctx, "POST", "/social/comment", body, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MutationResult](data)
}

func (s *SocialClient) Challenges(ctx context.Context) ([]Challenge, error) {
	data, err := s.client.doRequest(ctx, "GET", "/social/challenges", nil, nil)
	if err != nil {
		return nil, err
	}
	var challenges []Challenge
	if err := json.Unmarshal(data, &challenges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return challenges, nil
}

func (s *SocialClient) JoinChallenge(ctx context.Context, challengeID int) (*MutationResult, error) {
	data, err := s.client.doRequest(ctx, "POST", "/social/challenges/join", map[string]int{"challengeId": challengeID}, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MutationResult](data)
}

func (s *SocialClient) Follow(ctx context.Context, targetUserID int) (*MutationResult, error) {
	data, err := s.client.doRequest(ctx, "POST", "/social/follow", map[string]int{"userId": targetUserID}, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[MutationResult](data)
}

func (s *SocialClient) SearchUsers(ctx context.Context, query string) ([]User, error) {
	data, err := s.client.doRequest(ctx, "GET", "/social/users/search", nil, map[string]string{"q": query})
	if err != nil {
		return nil, err
	}
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return users, nil
}

// ============================================================================
// Agent
// ============================================================================

// Agent sends a natural-language message ("log 150g of rice for lunch") to the
// server's conversational endpoint and returns its reply. Mutations the agent
// performs happen server-side, so this call does not route through the offline
// queue; while offline it fails like any other read.
func (c *Client) Agent(ctx context.Context, opts *AgentOptions) (*AgentResponse, error) {
	raw, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	data, err := c.send(ctx, "POST", "/agent", c.captureHeaders(true), raw)
	if err != nil {
		return nil, err
	}
	return decodeJSON[AgentResponse](data)
}
