package macrolog

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents a non-2xx response from the MacroLog API.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error (HTTP %d)", e.Status)
	}
	return fmt.Sprintf("api error (HTTP %d): %s", e.Status, e.Message)
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	}
	return apiErr
}

// ============================================================================
// Auth Types
// ============================================================================

type RegisterOptions struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type LoginOptions struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthData struct {
	Token  string `json:"token"`
	UserID int    `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

type User struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// ============================================================================
// Food Types
// ============================================================================

// Nutrition holds macronutrients per 100 g.
type Nutrition struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"proteinG"`
	FatG     float64 `json:"fatG"`
	CarbsG   float64 `json:"carbsG"`
	FiberG   float64 `json:"fiberG,omitempty"`
	SodiumMg float64 `json:"sodiumMg,omitempty"`
}

type Food struct {
	ID         int       `json:"id"`
	Name       string    `json:"name"`
	Brand      string    `json:"brand,omitempty"`
	UPC        string    `json:"upc,omitempty"`
	DataSource string    `json:"dataSource,omitempty"` // "local", "usda"
	Nutrition  Nutrition `json:"nutrition"`
}

type FoodSearchResult struct {
	Success bool   `json:"success"`
	Query   string `json:"query,omitempty"`
	Foods   []Food `json:"foods"`
}

// ============================================================================
// Meal Log Types
// ============================================================================

type LogMealOptions struct {
	FoodID   int     `json:"foodId"`
	Grams    float64 `json:"grams"`
	MealType string  `json:"mealType,omitempty"` // breakfast, lunch, dinner, snack
	Notes    string  `json:"notes,omitempty"`
	LoggedAt string  `json:"loggedAt,omitempty"`
}

type MealLog struct {
	ID       int     `json:"id"`
	FoodID   int     `json:"foodId"`
	FoodName string  `json:"foodName,omitempty"`
	Grams    float64 `json:"grams"`
	MealType string  `json:"mealType"`
	LoggedAt string  `json:"loggedAt"`
	Notes    string  `json:"notes,omitempty"`
}

// LogMealResult is returned by Meals.Log. Offline and QueuedID are set when
// the request was queued locally instead of delivered; callers should treat
// that case as a normal success.
type LogMealResult struct {
	Success  bool     `json:"success"`
	Offline  bool     `json:"offline,omitempty"`
	QueuedID string   `json:"queuedId,omitempty"`
	Log      *MealLog `json:"log,omitempty"`
}

type DaySummary struct {
	Date     string    `json:"date"`
	Totals   Nutrition `json:"totals"`
	Goal     *Goals    `json:"goal,omitempty"`
	Logs     []MealLog `json:"logs,omitempty"`
	LogCount int       `json:"logCount"`
}

// ============================================================================
// Agent Types
// ============================================================================

type AgentOptions struct {
	UserID  int    `json:"userId"`
	Message string `json:"message"`
}

// AgentResponse is the natural-language endpoint's reply. State carries the
// conversation state blob the server threads between turns.
type AgentResponse struct {
	Response           string          `json:"response"`
	State              json.RawMessage `json:"state,omitempty"`
	Confidence         float64         `json:"confidence"`
	NeedsClarification bool            `json:"needsClarification,omitempty"`
}

// ============================================================================
// Meal Plan Types
// ============================================================================

type MealPlanItem struct {
	FoodName string  `json:"foodName"`
	Brand    string  `json:"brand,omitempty"`
	Grams    float64 `json:"grams"`
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"proteinG"`
	Notes    string  `json:"notes,omitempty"`
}

// MealPlan is a generated day plan, items grouped by meal type.
type MealPlan struct {
	ID          int                       `json:"mealPlanId"`
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	TargetDate  string                    `json:"targetDate"`
	Targets     Goals                     `json:"targets"`
	Actual      Nutrition                 `json:"actualNutrition"`
	Meals       map[string][]MealPlanItem `json:"meals"`
}

// ============================================================================
// Goal Types
// ============================================================================

type Goals struct {
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"proteinG"`
	FatG     float64 `json:"fatG"`
	CarbsG   float64 `json:"carbsG"`
}

type AdvancedGoals struct {
	Goals
	TemplateName string             `json:"templateName,omitempty"`
	Micros       map[string]float64 `json:"micros,omitempty"`
	TrainingDays []string           `json:"trainingDays,omitempty"`
}

type GoalTemplate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Goals       Goals  `json:"goals"`
}

// DatedGoals are the effective goals for one calendar day. Advanced goal
// settings can vary targets per date (training days, high-carb days), so the
// server resolves and caches them per day.
type DatedGoals struct {
	Date        string    `json:"date"`
	Goals       Nutrition `json:"goals"`
	GoalType    string    `json:"goalType,omitempty"`
	TrainingDay bool      `json:"trainingDay,omitempty"`
	HighCarbDay bool      `json:"highCarbDay,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// ============================================================================
// Recipe and Template Types
// ============================================================================

type RecipeIngredient struct {
	FoodID int     `json:"foodId"`
	Name   string  `json:"name,omitempty"`
	Grams  float64 `json:"grams"`
}

type Recipe struct {
	ID          int                `json:"id"`
	Name        string             `json:"name"`
	Servings    float64            `json:"servings"`
	Ingredients []RecipeIngredient `json:"ingredients"`
	PerServing  *Nutrition         `json:"perServing,omitempty"`
}

type MealTemplate struct {
	ID       int                `json:"id"`
	Name     string             `json:"name"`
	MealType string             `json:"mealType,omitempty"`
	Items    []RecipeIngredient `json:"items"`
}

// MutationResult is the generic envelope for write endpoints that return no
// domain payload of their own. Offline/QueuedID carry the queued-write marker.
type MutationResult struct {
	Success  bool   `json:"success"`
	Offline  bool   `json:"offline,omitempty"`
	QueuedID string `json:"queuedId,omitempty"`
	ID       int    `json:"id,omitempty"`
}

// ============================================================================
// Profile and Progress Types
// ============================================================================

type Profile struct {
	UserID       int     `json:"userId"`
	HeightCm     float64 `json:"heightCm,omitempty"`
	WeightKg     float64 `json:"weightKg,omitempty"`
	Age          int     `json:"age,omitempty"`
	Sex          string  `json:"sex,omitempty"`
	ActivityLevel string `json:"activityLevel,omitempty"`
}

type ProgressPoint struct {
	Date     string  `json:"date"`
	WeightKg float64 `json:"weightKg,omitempty"`
	Calories float64 `json:"calories"`
	ProteinG float64 `json:"proteinG"`
}

type ProgressData struct {
	UserID int             `json:"userId"`
	Points []ProgressPoint `json:"points"`
}

// ============================================================================
// Barcode Types
// ============================================================================

type BarcodeScanOptions struct {
	UPC       string `json:"upc,omitempty"`
	ImageData string `json:"imageData,omitempty"` // base64-encoded image
}

type BarcodeScanResult struct {
	Success     bool     `json:"success"`
	UPC         string   `json:"upc,omitempty"`
	Food        *Food    `json:"food,omitempty"`
	Error       string   `json:"error,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

type BarcodeScan struct {
	UPC       string `json:"upc"`
	Found     bool   `json:"found"`
	FoodName  string `json:"foodName,omitempty"`
	ScannedAt string `json:"scannedAt"`
}

type PopularProduct struct {
	UPC         string `json:"upc"`
	ProductName string `json:"productName"`
	Brand       string `json:"brand,omitempty"`
	ScanCount   int    `json:"scanCount"`
}

// ============================================================================
// Social Types
// ============================================================================

type SocialPost struct {
	ID        int    `json:"id"`
	UserID    int    `json:"userId"`
	UserName  string `json:"userName,omitempty"`
	Kind      string `json:"kind"` // meal, progress, challenge
	Content   string `json:"content"`
	Likes     int    `json:"likes"`
	Comments  int    `json:"comments"`
	CreatedAt string `json:"createdAt"`
}

type ShareOptions struct {
	Kind    string `json:"kind"`
	Content string `json:"content"`
	MealID  int    `json:"mealId,omitempty"`
}

type Challenge struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Members     int    `json:"members"`
	EndsAt      string `json:"endsAt,omitempty"`
}

// ============================================================================
// JSON helper
// ============================================================================

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}
