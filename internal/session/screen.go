package session

// Screen is one state of the session machine.
type Screen string

// Screens.
const (
	ScreenLogin       Screen = "login"
	ScreenHome        Screen = "home"
	ScreenOnboarding  Screen = "onboarding"
	ScreenDashboard   Screen = "dashboard"
	ScreenChat        Screen = "chat"
	ScreenTasks       Screen = "tasks"
	ScreenChallenges  Screen = "challenges"
	ScreenPods        Screen = "pods"
	ScreenLeaderboard Screen = "leaderboard"
)

var leafScreens = map[Screen]bool{
	ScreenChat:        true,
	ScreenTasks:       true,
	ScreenChallenges:  true,
	ScreenPods:        true,
	ScreenLeaderboard: true,
}

// ParseScreen maps a name to a navigable screen. Unknown names fall back to
// the dashboard.
func ParseScreen(name string) Screen {
	s := Screen(name)
	if s == ScreenDashboard || leafScreens[s] {
		return s
	}
	return ScreenDashboard
}

// IsLeaf reports whether s is reachable only from the dashboard.
func (s Screen) IsLeaf() bool {
	return leafScreens[s]
}
