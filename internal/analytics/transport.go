package analytics

// ListEventsQuery is the query string of the events endpoint.
type ListEventsQuery struct {
	Page      int    `form:"page" validate:"omitempty,min=1,max=10000"`
	Limit     int    `form:"limit" validate:"omitempty,min=1,max=100"`
	EventType string `form:"eventType" validate:"omitempty,oneof=LEAD APPOINTMENT MESSAGE HANDOFF NEW_CONVERSATION"`
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
}

// OverviewResponse is returned by the analytics endpoint.
type OverviewResponse struct {
	Stats        Stats   `json:"stats"`
	RecentEvents []Event `json:"recentEvents"`
}

// PageMeta describes one page of a list.
type PageMeta struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// ListEventsResponse is returned by the events endpoint.
type ListEventsResponse struct {
	Data []Event  `json:"data"`
	Meta PageMeta `json:"meta"`
}
