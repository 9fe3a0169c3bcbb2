package gong

// Call is one call returned by the /v2/calls listing endpoint.
type Call struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Started  string `json:"started"` // RFC 3339
	Duration int    `json:"duration"`
}

// Records carries the cursor-pagination metadata on listing responses.
type Records struct {
	TotalRecords    int    `json:"totalRecords"`
	CurrentPageSize int    `json:"currentPageSize"`
	Cursor          string `json:"cursor"`
}

// CallsResponse wraps the /v2/calls listing response.
type CallsResponse struct {
	Calls   []Call  `json:"calls"`
	Records Records `json:"records"`
}

// Sentence is one spoken sentence with millisecond offsets into the call.
type Sentence struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Text  string `json:"text"`
}

// TranscriptTurn is one speaker turn: a monologue of consecutive sentences by one speaker.
type TranscriptTurn struct {
	SpeakerID string     `json:"speakerId"`
	Topic     string     `json:"topic"`
	Sentences []Sentence `json:"sentences"`
}

// CallTranscript is the transcript of one call.
type CallTranscript struct {
	CallID     string           `json:"callId"`
	Transcript []TranscriptTurn `json:"transcript"`
}

// TranscriptResponse wraps the /v2/calls/transcript response.
type TranscriptResponse struct {
	CallTranscripts []CallTranscript `json:"callTranscripts"`
}

// transcriptRequest is the body for POST /v2/calls/transcript.
type transcriptRequest struct {
	Filter transcriptFilter `json:"filter"`
}

type transcriptFilter struct {
	CallIDs []string `json:"callIds"`
}
