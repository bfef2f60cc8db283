// Package triage provides the business boundary for Pulse's signal triage.
// It defines the Classifier (pure risk, urgency and decision-layer
// classification), the Service (submission, snapshot classification,
// notification dispatch), the Store/Notifier/Suggester collaborator
// interfaces, and the derived view models.
package triage
