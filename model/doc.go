// Package model contains the in-memory representation of playbooks and
// compiled workflow definitions used by the remediation engine.
//
// A playbook is a loosely typed stored record; the compiler turns it into a
// Definition whose steps carry exactly one of the closed Body variants:
// ActionBody, ApprovalBody, ConditionBody, ParallelBody or NotificationBody.
// The runtime state of a single run lives in the execution sub-package.
package model
