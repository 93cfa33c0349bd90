package entity

import "strings"

// Stage codes for the generator assembly route. The set is closed: ERP route
// rows carrying any other stage are rejected at import time.
const (
	StageAkuple        = "AKUPLE"
	StageMotorMontaj   = "MOTOR_MONTAJ"
	StagePanoTesisat   = "PANO_TESISAT"
	StageKabinGiydirme = "KABIN_GIYDIRME"
	StageTest          = "TEST"
	StageFinal         = "FINAL"
)

// StageInfo carries the display metadata of a route stage.
type StageInfo struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Sequence   int    `json:"sequence"`
	Department string `json:"department"`
}

// StageByID maps the ERP route-stage id to stage metadata.
var StageByID = map[int]StageInfo{
	1: {Code: StageAkuple, Name: "Akuple", Sequence: 10, Department: "AKUPLE"},
	2: {Code: StageMotorMontaj, Name: "Motor Montaj", Sequence: 20, Department: "MOTOR"},
	3: {Code: StagePanoTesisat, Name: "Pano Tesisat", Sequence: 30, Department: "TESISAT"},
	5: {Code: StageKabinGiydirme, Name: "Kabin Giydirme", Sequence: 50, Department: "KABIN"},
	4: {Code: StageTest, Name: "Test", Sequence: 60, Department: "TEST"},
	7: {Code: StageFinal, Name: "Final", Sequence: 70, Department: "KALITE"},
}

// StageByCode is the code-keyed view of StageByID.
var StageByCode = func() map[string]StageInfo {
	m := make(map[string]StageInfo, len(StageByID))
	for _, s := range StageByID {
		m[s.Code] = s
	}
	return m
}()

// NormalizeStageName uppercases and underscores a free-form stage name so
// "Kabin Giydirme" and "KABIN_GIYDIRME" resolve to the same code.
func NormalizeStageName(name string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(name)), " ", "_")
}

// JoinType controls when a route edge opens its successor stage.
type JoinType string

const (
	// JoinSingle opens the successor as soon as the predecessor finishes.
	JoinSingle JoinType = "single"
	// JoinAllOf opens the successor only after every predecessor finishes.
	JoinAllOf JoinType = "all_of"
)

// RouteEdge is one transition of the assembly route.
type RouteEdge struct {
	From []string
	To   string
	Join JoinType
}

// AssemblyRoute is the fixed fan-out/join topology:
// AKUPLE fans out to MOTOR_MONTAJ and PANO_TESISAT, which join into
// KABIN_GIYDIRME, then TEST, then FINAL.
var AssemblyRoute = []RouteEdge{
	{From: []string{StageAkuple}, To: StageMotorMontaj, Join: JoinSingle},
	{From: []string{StageAkuple}, To: StagePanoTesisat, Join: JoinSingle},
	{From: []string{StageMotorMontaj, StagePanoTesisat}, To: StageKabinGiydirme, Join: JoinAllOf},
	{From: []string{StageKabinGiydirme}, To: StageTest, Join: JoinSingle},
	{From: []string{StageTest}, To: StageFinal, Join: JoinSingle},
}

// SuccessorEdges returns the route edges leaving the given stage.
func SuccessorEdges(stageCode string) []RouteEdge {
	var out []RouteEdge
	for _, e := range AssemblyRoute {
		for _, f := range e.From {
			if f == stageCode {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// TerminalStage reports whether the stage has no successors.
func TerminalStage(stageCode string) bool {
	return len(SuccessorEdges(stageCode)) == 0
}
