package scheduler

import (
	"encoding/json"

	"clinic_webhook_backend/internal/leads"

	"github.com/hibiken/asynq"
)

const TaskLeadTrack = "leads.track"

// leadTrackMaxRetry bounds redelivery of a failed lead job.
const leadTrackMaxRetry = 3

func NewLeadTrackTask(job leads.Job) (*asynq.Task, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadTrack, data, asynq.MaxRetry(leadTrackMaxRetry)), nil
}

func ParseLeadTrackPayload(task *asynq.Task) (leads.Job, error) {
	var job leads.Job
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return leads.Job{}, err
	}
	return job, nil
}
