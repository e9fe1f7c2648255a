package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gzhole/rostershield/internal/approval"
	"github.com/gzhole/rostershield/internal/roster"
)

var (
	rosterCourse int64
	rosterYes    bool
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Import, inspect and clear stored course rosters",
}

var rosterImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Sync a course roster from a YAML or JSON file",
	Long: `Reads a roster file and stores it as the roster of one course. The
course becomes the owner's current course context.

The file is either a list of entries or a document with a course id:

  course_id: 42
  entries:
    - identity_id: 12345
      display_name: Jackson Smith
      student_id: C00123456
      email: jackson.smith@example.edu
      role: student

--course overrides the file's course_id.`,
	Args: cobra.ExactArgs(1),
	RunE: rosterImportCommand,
}

var rosterCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a roster file and report ambiguous names without storing it",
	Args:  cobra.ExactArgs(1),
	RunE:  rosterCheckCommand,
}

var rosterShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List stored courses, or the entries of one course with --course",
	RunE:  rosterShowCommand,
}

var rosterClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the stored roster of a course",
	RunE:  rosterClearCommand,
}

func init() {
	for _, c := range []*cobra.Command{rosterImportCmd, rosterCheckCmd, rosterShowCmd, rosterClearCmd} {
		c.Flags().Int64Var(&rosterCourse, "course", 0, "LMS course id")
	}
	rosterClearCmd.Flags().BoolVarP(&rosterYes, "yes", "y", false, "Do not ask for confirmation")
	rosterCmd.AddCommand(rosterImportCmd, rosterCheckCmd, rosterShowCmd, rosterClearCmd)
	rootCmd.AddCommand(rosterCmd)
}

type rosterFile struct {
	CourseID int64          `yaml:"course_id"`
	Entries  []roster.Entry `yaml:"entries"`
}

// readRosterFile accepts either a rosterFile document or a bare list of
// entries. JSON is valid YAML, so both formats share the decoder.
func readRosterFile(path string) (*rosterFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}

	var rf rosterFile
	if err := yaml.Unmarshal(data, &rf); err == nil && len(rf.Entries) > 0 {
		return &rf, nil
	}

	var entries []roster.Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse roster file %s: %w", path, err)
	}
	return &rosterFile{Entries: entries}, nil
}

// courseFor picks the --course flag over the file's course id.
func (rf *rosterFile) courseFor(flag int64) (int64, error) {
	if flag > 0 {
		return flag, nil
	}
	if rf.CourseID > 0 {
		return rf.CourseID, nil
	}
	return 0, fmt.Errorf("no course id: set course_id in the file or pass --course")
}

func rosterImportCommand(cmd *cobra.Command, args []string) error {
	rf, err := readRosterFile(args[0])
	if err != nil {
		return err
	}
	courseID, err := rf.courseFor(rosterCourse)
	if err != nil {
		return err
	}

	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.svc.SyncRoster(cmd.Context(), e.owner, courseID, rf.Entries)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Synced %d entries for course %d (owner %s)\n", res.Entries, res.CourseID, res.OwnerID)
	fmt.Fprintf(out, "Course %d is now the current course context.\n", res.CourseID)
	printCollisions(cmd, res.Collisions)
	return nil
}

func rosterCheckCommand(cmd *cobra.Command, args []string) error {
	rf, err := readRosterFile(args[0])
	if err != nil {
		return err
	}
	courseID, err := rf.courseFor(rosterCourse)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	entries := make([]roster.Entry, len(rf.Entries))
	for i, en := range rf.Entries {
		if en.OwnerID == "" {
			en.OwnerID = cfg.OwnerID
		}
		if en.CourseID == 0 {
			en.CourseID = courseID
		}
		entries[i] = en
	}
	if err := roster.ValidateAll(cfg.OwnerID, courseID, entries); err != nil {
		return err
	}

	idx := roster.NewIndex(entries)
	fmt.Fprintf(cmd.OutOrStdout(), "Roster OK: %d entries for course %d\n", idx.Len(), courseID)
	printCollisions(cmd, idx.Collisions())
	return nil
}

func printCollisions(cmd *cobra.Command, collisions []roster.Collision) {
	if len(collisions) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%d ambiguous name(s); the first listed identity wins:\n", len(collisions))
	for _, c := range collisions {
		fmt.Fprintf(out, "  %q -> identities %v\n", c.DisplayName, c.IdentityIDs)
	}
}

func rosterShowCommand(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	out := cmd.OutOrStdout()
	if rosterCourse == 0 {
		courses, err := e.store.ListCourses(cmd.Context(), e.owner)
		if err != nil {
			return err
		}
		if len(courses) == 0 {
			fmt.Fprintf(out, "No rosters stored for owner %s.\n", e.owner)
			return nil
		}
		fmt.Fprintf(out, "%-10s %-8s %s\n", "COURSE", "ENTRIES", "SYNCED")
		for _, c := range courses {
			synced := time.Unix(c.SyncedAt, 0).Local().Format("2006-01-02 15:04:05")
			fmt.Fprintf(out, "%-10d %-8d %s\n", c.CourseID, c.Entries, synced)
		}
		return nil
	}

	entries, err := e.store.ListRoster(cmd.Context(), e.owner, rosterCourse)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintf(out, "No roster stored for course %d.\n", rosterCourse)
		return nil
	}
	fmt.Fprintf(out, "%-10s %-28s %-12s %-32s %s\n", "IDENTITY", "NAME", "STUDENT ID", "EMAIL", "ROLE")
	for _, en := range entries {
		fmt.Fprintf(out, "%-10d %-28s %-12s %-32s %s\n", en.IdentityID, en.DisplayName, en.StudentID, en.Email, en.Role)
	}
	return nil
}

func rosterClearCommand(cmd *cobra.Command, args []string) error {
	if rosterCourse == 0 {
		return fmt.Errorf("--course is required")
	}

	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	if !rosterYes {
		entries, err := e.store.ListRoster(cmd.Context(), e.owner, rosterCourse)
		if err != nil {
			return err
		}
		res := approval.Default().Ask(approval.Prompt{
			Action:   "clear the roster",
			OwnerID:  e.owner,
			CourseID: rosterCourse,
			Entries:  len(entries),
		})
		if !res.Approved {
			return fmt.Errorf("roster clear not confirmed (%s); pass --yes to skip the prompt", res.UserAction)
		}
	}

	n, err := e.svc.ClearRoster(cmd.Context(), e.owner, rosterCourse)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d entries for course %d\n", n, rosterCourse)
	return nil
}
