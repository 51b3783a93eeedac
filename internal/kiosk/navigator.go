package kiosk

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvillanueva/crewdesk-backend/pkg/logger"
)

// ScreenNavigator tracks which screen the kiosk is showing. The session core
// drives it on sign-out and route guarding; the HTTP facade reads it so the
// shell can follow along.
type ScreenNavigator struct {
	mu        sync.Mutex
	current   string
	loginPath string
	logg      *logger.Logger
}

func NewScreenNavigator(loginPath string, logg *logger.Logger) *ScreenNavigator {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &ScreenNavigator{current: loginPath, loginPath: loginPath, logg: logg}
}

// Navigate moves the kiosk to the target screen.
func (n *ScreenNavigator) Navigate(ctx context.Context, target string) {
	n.mu.Lock()
	n.current = target
	n.mu.Unlock()
	if n.logg != nil {
		n.logg.Info(ctx, fmt.Sprintf("navigating to %s", target))
	}
}

// ToLogin sends the kiosk back to the login entry point.
func (n *ScreenNavigator) ToLogin(ctx context.Context) {
	n.Navigate(ctx, n.loginPath)
}

// Current returns the screen the kiosk is showing.
func (n *ScreenNavigator) Current() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}
