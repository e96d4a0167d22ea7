// Package push delivers topic broadcasts to mobile clients.
//
// FCMGateway talks to the Firebase Cloud Messaging HTTP v1 API through the
// generated google.golang.org/api/fcm/v1 client. LogGateway is a stand-in for
// local runs. New wraps the selected gateway with a per-send timeout and a token
// bucket so a burst of uploads cannot exhaust the provider quota.
package push
